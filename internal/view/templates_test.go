package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/i18n"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(i18n.New("fr"))
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderErrorPage(t *testing.T) {
	engine, err := NewEngine(i18n.New("fr"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/errors/error.html", TemplateData{
		Title: "Accès refusé",
		Lang:  "fr",
		Data:  map[string]any{"Message": "Vous n'avez pas les permissions nécessaires pour voir la liste des utilisateurs."},
	})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Accès refusé")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRenderNilEngine(t *testing.T) {
	var engine *Engine
	assert.Error(t, engine.Render(httptest.NewRecorder(), "x", TemplateData{}))
}
