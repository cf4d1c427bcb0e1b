// Package model defines the purchase subsystem records and the closed
// enumerations that discriminate them.
package model
