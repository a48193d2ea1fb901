package usecase

import (
	"fmt"
	"strings"
)

// User-facing fixed answers.
const (
	msgEmptyQuestion   = "Informe uma pergunta sobre as atas."
	msgNoCandidates    = "Não encontrei documentos relevantes para a pergunta."
	msgNoEvidence      = "Não encontrei evidências atribuíveis a um RPPS específico nas atas para responder a essa pergunta."
	msgNoPeriodFormat  = "Não há atas disponíveis para esse período (%s)."
	msgNoEntityFormat  = "Nenhuma entidade associada a %q foi encontrada nas atas."
	msgListedFormat    = "Registros associados a %q:"
	msgRetrievalFormat = "⚠ Erro ao buscar documentos: %v"
	msgCompletionFmt   = "⚠ Erro ao consultar o modelo: %v"
	msgEmptyCompletion = "O modelo não retornou uma resposta."
)

const systemInstruction = "Você é um assistente especializado em atas de RPPS (regimes próprios de previdência social). " +
	"Responda somente com base nos documentos fornecidos. " +
	"Se a informação não estiver nos documentos, diga que não a encontrou. " +
	"Cite o RPPS e a data de cada informação utilizada."

const (
	instructionAnalytical = "Compare as decisões registradas nas atas, identificando o RPPS e a data de cada evidência."
	instructionSummary    = "Resuma os principais pontos das atas, agrupando por RPPS e por data."
	instructionDefault    = "Responda de forma objetiva e em português."
)

func buildUserPrompt(instruction, context, question string) string {
	var b strings.Builder
	if instruction != "" {
		fmt.Fprintf(&b, "[INSTRUÇÃO]\n%s\n\n", instruction)
	}
	fmt.Fprintf(&b, "[DOCUMENTOS]\n%s\n\n", strings.TrimSpace(context))
	fmt.Fprintf(&b, "[PERGUNTA]\n%s", strings.TrimSpace(question))
	return b.String()
}
