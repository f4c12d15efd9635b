package followup

import (
	"regexp"
	"strconv"
	"time"

	"github.com/agendia-app/agendia-platform/internal/store"
)

var placeholderRE = regexp.MustCompile(`\{([a-z_]+)\}`)

// RenderTemplate substitutes {cliente_nome}, {profissional}, {servico},
// {horario} and {minutos} placeholders. Missing variables render as the
// empty string; rendering never fails.
func RenderTemplate(tmpl string, vars map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
}

// TemplateVars builds the substitution set for an appointment notification.
func TemplateVars(client store.Client, appt store.Appointment, loc *time.Location, minutes int) map[string]string {
	vars := map[string]string{
		"cliente_nome": client.Name,
		"profissional": appt.Professional,
		"servico":      appt.Service,
		"horario":      appt.StartsAt.In(loc).Format("15:04"),
	}
	if minutes > 0 {
		vars["minutos"] = strconv.Itoa(minutes)
	}
	return vars
}
