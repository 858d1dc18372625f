package dialogue

import (
	"fmt"
	"strings"

	"github.com/docdraft/docdraft/schema"
)

// Canned user-facing texts. Every failure the user sees is a polite
// sentence in the conversation language, never an error code.

func isRussian(language string) bool {
	return strings.HasPrefix(strings.ToLower(language), "ru")
}

func msgApology(language string) string {
	if isRussian(language) {
		return "Что-то пошло не так. Пожалуйста, повторите последнее сообщение."
	}
	return "Something went wrong on our side. Please send that again."
}

func msgGreeting(templates []schema.Info) string {
	return "Hello! I can draft a document for you. " + msgTemplateList(templates)
}

func msgClarification(templates []schema.Info) string {
	return "I didn't catch which document you need. " + msgTemplateList(templates)
}

func msgTemplateList(templates []schema.Info) string {
	if len(templates) == 0 {
		return "No document templates are available right now."
	}
	var b strings.Builder
	b.WriteString("Available templates:\n")
	for _, t := range templates {
		fmt.Fprintf(&b, "- %s\n", t.HumanName)
	}
	return b.String()
}

func msgCancelled(language string) string {
	if isRussian(language) {
		return "Хорошо, отменяю. Чем ещё могу помочь?"
	}
	return "Okay, cancelled. What else can I help with?"
}

func msgNothingToCancel() string {
	return "There is nothing in progress to cancel."
}

func msgDocumentReady(language string) string {
	if isRussian(language) {
		return "Документ готов."
	}
	return "Your document is ready."
}

func msgRetryQuestion(retry, question string) string {
	if retry == "" {
		return question
	}
	return retry + "\n\n" + question
}
