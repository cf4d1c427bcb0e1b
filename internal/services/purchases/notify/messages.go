package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	en := language.English
	message.SetString(en, "receipt.event_access.subject", "Your eventpass receipt %s")
	message.SetString(en, "receipt.event_access.detail", "You unlocked %s for %d tokens. Access is valid until %s.")
	message.SetString(en, "receipt.token_package.subject", "Your eventpass token receipt %s")
	message.SetString(en, "receipt.token_package.detail", "%d tokens were added to your balance for %s %s.")
	message.SetString(en, "receipt.greeting", "Hi %s,")
	message.SetString(en, "receipt.number", "Receipt number: %s")
	message.SetString(en, "receipt.verify_hint", "Keep this number to verify the purchase at any time.")

	pt := language.BrazilianPortuguese
	message.SetString(pt, "receipt.event_access.subject", "Seu recibo eventpass %s")
	message.SetString(pt, "receipt.event_access.detail", "Você desbloqueou %s por %d tokens. O acesso vale até %s.")
	message.SetString(pt, "receipt.token_package.subject", "Seu recibo de tokens eventpass %s")
	message.SetString(pt, "receipt.token_package.detail", "%d tokens foram adicionados ao seu saldo por %s %s.")
	message.SetString(pt, "receipt.greeting", "Olá %s,")
	message.SetString(pt, "receipt.number", "Número do recibo: %s")
	message.SetString(pt, "receipt.verify_hint", "Guarde este número para verificar a compra quando quiser.")
}
