package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agendia-app/agendia-platform/internal/store"
)

// ExtractFields parses a PT-BR message into partial booking fields against the
// company's catalog. Missing pieces stay empty; the per-subject memory merge
// accumulates them across turns.
// Examples:
//   - "quero cortar o cabelo" → {Service: "corte"}
//   - "terça" → {Date: next Tuesday}
//   - "de manhã" → {Clock: "09:00"}
func ExtractFields(text string, company store.Company, now time.Time) ExtractedFields {
	normalized := normalizeText(text)

	return ExtractedFields{
		Service:      extractService(normalized, company.Services),
		Professional: extractProfessional(normalized, company.Professionals),
		Date:         extractDate(normalized, now.In(company.Location())),
		Clock:        extractClock(normalized),
	}
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "ã", "a", "â", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "õ", "o", "ô", "o",
	"ú", "u",
	"ç", "c",
)

func normalizeText(text string) string {
	return accentReplacer.Replace(strings.ToLower(text))
}

// serviceAliases maps common phrasings onto catalog service names.
var serviceAliases = map[string]string{
	"cortar o cabelo": "corte",
	"cortar cabelo":   "corte",
	"pintar o cabelo": "coloracao",
	"pintar cabelo":   "coloracao",
	"fazer a unha":    "manicure",
	"fazer as unhas":  "manicure",
}

func extractService(text string, services []store.Service) string {
	for _, s := range services {
		if strings.Contains(text, normalizeText(s.Name)) {
			return s.Name
		}
	}
	for phrase, alias := range serviceAliases {
		if !strings.Contains(text, phrase) {
			continue
		}
		for _, s := range services {
			if normalizeText(s.Name) == alias {
				return s.Name
			}
		}
	}
	return ""
}

func extractProfessional(text string, professionals []store.Professional) string {
	for _, p := range professionals {
		if strings.Contains(text, normalizeText(p.Name)) {
			return p.Name
		}
	}
	return ""
}

var weekdaysPT = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sabado":  time.Saturday,
}

var numericDateRE = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\b`)

func extractDate(text string, now time.Time) string {
	if strings.Contains(text, "depois de amanha") {
		return now.AddDate(0, 0, 2).Format("2006-01-02")
	}
	if strings.Contains(text, "amanha") {
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if strings.Contains(text, "hoje") {
		return now.Format("2006-01-02")
	}

	if m := numericDateRE.FindStringSubmatch(text); m != nil {
		day := atoi(m[1])
		month := atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			candidate := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
			// A day/month without a year that already passed means next year.
			if m[3] == "" && candidate.Before(startOfDay(now)) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate.Format("2006-01-02")
		}
	}

	for name, wd := range weekdaysPT {
		if !strings.Contains(text, name) {
			continue
		}
		days := int(wd-now.Weekday()+7) % 7
		if days == 0 && !strings.Contains(text, "hoje") {
			days = 7
		}
		return now.AddDate(0, 0, days).Format("2006-01-02")
	}

	return ""
}

var (
	clockRE      = regexp.MustCompile(`\b(\d{1,2})[h:](\d{2})?\b`)
	bareClockRE  = regexp.MustCompile(`\bas (\d{1,2})\b`)
	periodsOfDay = []struct {
		name  string
		clock string
	}{
		{"de manha", "09:00"},
		{"pela manha", "09:00"},
		{"de tarde", "14:00"},
		{"a tarde", "14:00"},
		{"de noite", "19:00"},
		{"a noite", "19:00"},
	}
)

func extractClock(text string) string {
	if m := clockRE.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute = atoi(m[2])
		}
		if hour <= 23 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", hour, minute)
		}
	}

	if m := bareClockRE.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		if hour <= 23 {
			return fmt.Sprintf("%02d:00", hour)
		}
	}

	for _, p := range periodsOfDay {
		if strings.Contains(text, p.name) {
			return p.clock
		}
	}
	return ""
}

// ClassifyConversation maps an inbound turn onto the closed intent enumeration.
func ClassifyConversation(text string, fields ExtractedFields, hasUpcoming bool) ConversationType {
	normalized := normalizeText(text)

	switch {
	case containsAny(normalized, "cancelar", "desmarcar", "nao vou poder ir"):
		return TypeCancellation
	case containsAny(normalized, "remarcar", "adiar", "mudar o horario", "trocar o horario"):
		if hasUpcoming {
			return TypeReschedule
		}
		return TypeNewBooking
	case containsAny(normalized, "quanto custa", "qual o preco", "qual o valor", "onde fica", "qual o endereco", "que horas abre", "que horas fecha", "horario de funcionamento"):
		return TypeFAQ
	case !fields.IsZero() || containsAny(normalized, "agendar", "marcar", "quero", "tem horario", "tem vaga"):
		return TypeNewBooking
	default:
		return TypeUnknown
	}
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
