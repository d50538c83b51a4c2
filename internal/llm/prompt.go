package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/norkodev/finbot/internal/model"
)

const systemInstruction = "Eres un clasificador de transacciones bancarias en México. " +
	"Usa únicamente las categorías y subcategorías de la lista proporcionada; nunca inventes categorías nuevas. " +
	"Responde solo con JSON válido, sin texto adicional ni formato Markdown."

// buildPrompt lists the vocabulary and numbers the items from 1. Responses
// refer back to items by that number.
func buildPrompt(items []Item, vocabulary model.Vocabulary) string {
	categories := make(map[string][]string, len(vocabulary))
	for name, subs := range vocabulary {
		if subs == nil {
			subs = []string{}
		}
		categories[name] = subs
	}
	vocabJSON, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		vocabJSON = []byte(strings.Join(vocabulary.Categories(), ", "))
	}

	var sb strings.Builder
	sb.WriteString("Clasifica estas transacciones bancarias en México.\n\n")
	sb.WriteString("CATEGORÍAS VÁLIDAS:\n")
	sb.Write(vocabJSON)
	sb.WriteString("\n\nTRANSACCIONES:\n")
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s - $%s\n", i+1, item.Description, item.Amount.StringFixed(2))
	}
	sb.WriteString(`
INSTRUCCIONES:
1. Para cada transacción, elige la categoría y subcategoría más apropiada de la lista.
2. Usa contexto mexicano (OXXO=gastos_hormiga, UBER=transporte, etc).
3. Si no estás seguro, usa "otros" y una confianza baja.
4. Responde SOLO con un arreglo JSON, sin explicaciones.

FORMATO DE RESPUESTA:
[
  {"id": 1, "category": "categoria", "subcategory": "subcategoria", "confidence": 0.95}
]
`)
	return sb.String()
}
