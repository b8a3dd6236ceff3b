package bot

import (
	"fmt"
	"strings"
)

// Template identifies the business vertical a chatbot answers for. Each
// template owns its ordered keyword table.
type Template string

const (
	TemplateCorporate  Template = "corporate"
	TemplateEcommerce  Template = "ecommerce"
	TemplateHealthcare Template = "healthcare"
)

// ParseTemplate validates a template name coming from the API.
func ParseTemplate(s string) (Template, error) {
	switch Template(strings.ToLower(strings.TrimSpace(s))) {
	case TemplateCorporate:
		return TemplateCorporate, nil
	case TemplateEcommerce:
		return TemplateEcommerce, nil
	case TemplateHealthcare:
		return TemplateHealthcare, nil
	default:
		return "", fmt.Errorf("unknown chatbot template %q", s)
	}
}

// Reply is the outcome of matching one inbound text.
type Reply struct {
	Text      string
	Escalated bool
}

// keywordEntry maps a set of trigger keywords to a canned response. Entries
// are checked in order; the first keyword hit wins.
type keywordEntry struct {
	keywords []string
	response string
}

var greetingKeywords = []string{"hola", "hello", "hi", "buenos dias", "buenas tardes", "buenas noches"}

var escalationKeywords = []string{"humano", "agente", "persona real", "hablar con alguien", "representante", "asesor"}

const escalationNotice = "\n\nEntiendo que prefieres hablar con una persona. Un agente se pondrá en contacto contigo en breve."

var greetingResponses = map[Template]string{
	TemplateCorporate:  "¡Hola! Bienvenido a nuestro centro de atención empresarial. ¿En qué podemos ayudarte? Puedes preguntar por precios, horarios o servicios.",
	TemplateEcommerce:  "¡Hola! Gracias por escribir a nuestra tienda. Pregunta por envíos, pedidos, pagos o devoluciones.",
	TemplateHealthcare: "¡Hola! Bienvenido a nuestro centro de salud. Puedo ayudarte con citas, horarios y recetas.",
}

var fallbackResponses = map[Template]string{
	TemplateCorporate:  "Gracias por tu mensaje. Un miembro de nuestro equipo lo revisará pronto. Escribe \"servicios\" para conocer lo que ofrecemos.",
	TemplateEcommerce:  "Gracias por tu mensaje. Escribe \"pedido\", \"envío\" o \"pago\" y te ayudo de inmediato.",
	TemplateHealthcare: "Gracias por tu mensaje. Escribe \"cita\" para agendar o \"horario\" para conocer nuestra disponibilidad.",
}

var keywordTables = map[Template][]keywordEntry{
	TemplateCorporate: {
		{
			keywords: []string{"precio", "costo", "tarifa", "cotizacion", "cotización"},
			response: "Nuestros planes:\n• Básico — $99/mes\n• Profesional — $249/mes\n• Empresarial — $499/mes\nResponde con el nombre del plan para recibir una cotización detallada.",
		},
		{
			keywords: []string{"horario", "hora", "abierto"},
			response: "Atendemos de lunes a viernes de 9:00 a 18:00 y sábados de 9:00 a 13:00.",
		},
		{
			keywords: []string{"servicio", "servicios", "ofrecen"},
			response: "Ofrecemos consultoría, soporte técnico y desarrollo a medida. ¿Sobre cuál te gustaría saber más?",
		},
		{
			keywords: []string{"contacto", "correo", "email", "telefono", "teléfono"},
			response: "Puedes escribirnos a contacto@empresa.com o llamarnos al +52 55 1234 5678.",
		},
	},
	TemplateEcommerce: {
		{
			keywords: []string{"envio", "envío", "entrega", "cuanto tarda"},
			response: "Los envíos tardan de 2 a 5 días hábiles. El envío es gratis en compras mayores a $500.",
		},
		{
			keywords: []string{"pedido", "orden", "rastrear", "seguimiento"},
			response: "Para rastrear tu pedido envíame tu número de orden y lo verifico de inmediato.",
		},
		{
			keywords: []string{"pago", "tarjeta", "transferencia", "efectivo"},
			response: "Aceptamos tarjetas de crédito y débito, transferencia bancaria y pago contra entrega.",
		},
		{
			keywords: []string{"devolucion", "devolución", "cambio", "reembolso"},
			response: "Tienes 30 días para devoluciones. Envíame tu número de orden y el motivo para iniciar el proceso.",
		},
	},
	TemplateHealthcare: {
		{
			keywords: []string{"cita", "agendar", "consulta", "turno"},
			response: "Para agendar una cita indícame el día y la hora que prefieres y confirmo disponibilidad.",
		},
		{
			keywords: []string{"horario", "hora", "abierto"},
			response: "Consultas de lunes a sábado de 8:00 a 20:00. Urgencias las 24 horas.",
		},
		{
			keywords: []string{"emergencia", "urgencia", "urgente"},
			response: "Si es una emergencia médica llama de inmediato al 911 o acude a nuestra sala de urgencias, abierta 24 horas.",
		},
		{
			keywords: []string{"receta", "medicamento", "renovar"},
			response: "Para renovar una receta envíame el nombre del medicamento y tu médico la revisará dentro de las próximas 24 horas.",
		},
	},
}

// Respond selects the canned response for an inbound text. Greeting keywords
// win over the template's keyword table; anything unmatched falls through to
// the template's generic response. Escalation keywords never change the
// selection, they only append the handoff notice.
func Respond(tpl Template, text string) Reply {
	normalized := strings.ToLower(strings.TrimSpace(text))

	reply := Reply{Text: fallbackResponses[tpl]}

	if containsAny(normalized, greetingKeywords) {
		reply.Text = greetingResponses[tpl]
	} else {
		for _, entry := range keywordTables[tpl] {
			if containsAny(normalized, entry.keywords) {
				reply.Text = entry.response
				break
			}
		}
	}

	if containsAny(normalized, escalationKeywords) {
		reply.Text += escalationNotice
		reply.Escalated = true
	}

	return reply
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
