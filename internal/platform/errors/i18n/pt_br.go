package i18n

var ptBRMessages = map[Code]string{
	CodeUnknown:                     "Ocorreu um erro inesperado.",
	CodeNotFound:                    "{{if .Resource}}O recurso {{.Resource}}{{else}}O recurso{{end}} solicitado não foi encontrado.",
	CodeInsufficientBalance:         "Saldo de tokens insuficiente: {{.Required}} necessários, {{.Current}} disponíveis (faltam {{.Shortage}}).",
	CodeInvalidAmount:               "A quantidade de tokens não pode ser negativa.",
	CodeUnknownPackage:              "Pacote de tokens {{.PackageID}} desconhecido.",
	CodePaymentDeclined:             "O pagamento foi recusado{{if .Detail}}: {{.Detail}}{{end}}.",
	CodePaymentProcessorUnavailable: "O processador de pagamentos está indisponível. Tente novamente.",
	CodeUnauthorized:                "É necessário autenticar-se.",
	CodeForbidden:                   "Você não tem acesso ativo a este evento.",
	CodeInvalidArgument:             "A requisição é inválida{{if .Field}}: {{.Field}}{{end}}.",
	CodeConflict:                    "A requisição conflita com um registro existente.",
	CodeInternal:                    "Ocorreu um erro interno. O suporte foi notificado.",
}
