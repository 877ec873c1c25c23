package classify

import (
	"fmt"
	"strings"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// SystemPrompt frames the model as a Brazilian transaction classifier.
// It demands raw JSON output; some models wrap responses in Markdown
// fences anyway, which cleanModelJSON strips.
const SystemPrompt = `Você é um assistente financeiro especializado em classificar transações bancárias no Brasil.

Seu objetivo é analisar descrições de transações e sugerir a categoria mais apropriada.

Características importantes:
- Reconheça marcas e serviços brasileiros (Nubank, Uber, iFood, Netflix, etc.)
- Considere padrões de descrição de bancos brasileiros
- Use o valor da transação como pista secundária
- Seja conservador na confiança quando a descrição for genérica
- Retorne SEMPRE um JSON válido, sem texto adicional

Responda SEMPRE no formato JSON especificado no prompt do usuário.`

// BuildPrompt assembles the user prompt for one transaction against the
// caller-provided category list.
func BuildPrompt(description string, value float64, flow domain.FlowType, categories []domain.Category) string {
	var b strings.Builder

	b.WriteString("Analise a transação abaixo e sugira a categoria mais apropriada da lista.\n\n")
	fmt.Fprintf(&b, "**TRANSAÇÃO A CLASSIFICAR:**\nDescrição: %q\nValor: R$ %.2f\nTipo: %s\n\n",
		description, value, strings.ToUpper(string(flow)))

	b.WriteString("**CATEGORIAS DISPONÍVEIS:**\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "  - ID: %s | %s\n", c.ID, c.Name)
	}

	if flow == domain.FlowExpense {
		b.WriteString(`
**Exemplos de classificação:**
- "Almoço no Subway" -> Alimentação (alta confiança: 0.95)
- "Uber para o aeroporto" -> Transporte (alta confiança: 0.9)
- "Netflix" -> Assinatura/Entretenimento (alta confiança: 0.92)
- "Conta de luz" -> Moradia/Utilidades (alta confiança: 0.88)
`)
	} else {
		b.WriteString(`
**Exemplos de classificação:**
- "Salário" -> Salário (alta confiança: 0.98)
- "Transferência de João" -> Transferência recebida (média confiança: 0.6)
- "Dividendos PETR4" -> Investimentos (alta confiança: 0.9)
`)
	}

	b.WriteString(`
**FORMATO DE RESPOSTA:**
Retorne APENAS um JSON válido (sem markdown, sem explicações extras):

{
  "categoria_id": "id-da-categoria-escolhida",
  "confianca": 0.85,
  "reasoning": "Palavra-chave 'X' indica categoria Y"
}

**REGRAS DO JSON:**
- categoria_id: ID exato de uma das categorias listadas (ou null se nenhuma servir)
- confianca: número entre 0.0 e 1.0
- reasoning: máximo 60 caracteres, explicação concisa em português

**IMPORTANTE:**
- Responda APENAS com o JSON
- Não adicione texto antes ou depois do JSON
- Não use markdown`)

	return b.String()
}

// cleanModelJSON strips Markdown code fences and surrounding junk from a
// model response, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
