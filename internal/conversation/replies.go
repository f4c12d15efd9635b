package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agendia-app/agendia-platform/internal/validation"
)

// TemplateReplies is a deterministic ReplyGenerator that prompts for the
// next missing booking field. It stands in where no external language model
// is configured and doubles as the degraded-mode generator.
type TemplateReplies struct{}

// NewTemplateReplies creates the template-based reply generator.
func NewTemplateReplies() *TemplateReplies {
	return &TemplateReplies{}
}

// GenerateReply produces the next conversational prompt, or "" to let the
// pipeline fall back to its outcome messages.
func (g *TemplateReplies) GenerateReply(_ context.Context, convo *Context, merged ExtractedFields, result validation.Result) (string, error) {
	switch convo.ConversationType {
	case TypeFAQ:
		return faqReply(convo), nil
	case TypeCancellation:
		if len(convo.Upcoming) == 0 {
			return "Não encontrei nenhum agendamento ativo para cancelar. Posso ajudar com algo mais?", nil
		}
		// Outcome message comes from the pipeline after the cancellation.
		return "", nil
	}

	// Confirmations and slot suggestions come from the pipeline.
	if merged.Complete() && result.SlotAvailable {
		return "", nil
	}
	if len(result.SuggestedSlots) > 0 {
		return "", nil
	}

	switch {
	case merged.Service == "":
		return "Olá! Qual serviço você gostaria de agendar?", nil
	case merged.Date == "":
		return fmt.Sprintf("Perfeito, %s! Para qual dia você gostaria de marcar?", strings.ToLower(merged.Service)), nil
	case merged.Clock == "":
		return "E qual horário fica melhor para você?", nil
	case merged.Professional == "":
		return professionalPrompt(convo, merged.Service), nil
	}
	return "", nil
}

func professionalPrompt(convo *Context, service string) string {
	var names []string
	for _, p := range convo.Company.Professionals {
		for _, s := range p.Services {
			if s == service {
				names = append(names, p.Name)
				break
			}
		}
	}
	if len(names) == 0 {
		return "Com qual profissional você prefere?"
	}
	return "Com qual profissional você prefere? Temos: " + strings.Join(names, ", ") + "."
}

func faqReply(convo *Context) string {
	var lines []string
	for day := time.Sunday; day <= time.Saturday; day++ {
		window, ok := convo.Company.Schedule[day]
		if !ok || !window.Open {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s às %s", weekdayLabelPT(day), window.Start, window.End))
	}
	if len(lines) == 0 {
		return "Entre em contato para saber nossos horários de atendimento."
	}
	return "Nosso horário de atendimento: " + strings.Join(lines, "; ") + "."
}

func weekdayLabelPT(day time.Weekday) string {
	switch day {
	case time.Sunday:
		return "domingo"
	case time.Monday:
		return "segunda"
	case time.Tuesday:
		return "terça"
	case time.Wednesday:
		return "quarta"
	case time.Thursday:
		return "quinta"
	case time.Friday:
		return "sexta"
	default:
		return "sábado"
	}
}
