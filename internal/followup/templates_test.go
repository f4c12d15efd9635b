package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendia-app/agendia-platform/internal/store"
)

func TestRenderTemplateSubstitutesAllVars(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	client := store.Client{Name: "Maria"}
	appt := store.Appointment{
		Professional: "Ana",
		Service:      "corte",
		StartsAt:     time.Date(2025, 6, 2, 14, 30, 0, 0, loc),
	}

	got := RenderTemplate(
		"Oi {cliente_nome}, {servico} com {profissional} às {horario} (em {minutos} min).",
		TemplateVars(client, appt, loc, 45),
	)
	assert.Equal(t, "Oi Maria, corte com Ana às 14:30 (em 45 min).", got)
}

func TestRenderTemplateMissingVarIsEmpty(t *testing.T) {
	got := RenderTemplate("antes {desconhecido} depois", map[string]string{})
	assert.Equal(t, "antes  depois", got)
}

func TestRenderTemplateLeavesPlainTextAlone(t *testing.T) {
	assert.Equal(t, "sem variáveis", RenderTemplate("sem variáveis", nil))
}

func TestTemplateVarsOmitMinutesWhenZero(t *testing.T) {
	vars := TemplateVars(store.Client{Name: "Maria"}, store.Appointment{}, time.UTC, 0)
	_, ok := vars["minutos"]
	assert.False(t, ok)
}
