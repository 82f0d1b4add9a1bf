package conversation

// QuickPrompts are suggested openers offered on an empty conversation.
var QuickPrompts = []string{
	"Help me write an email",
	"Explain quantum computing",
	"Create a marketing plan",
	"Debug this code issue",
	"Generate creative ideas",
	"Summarize this article",
}

// StructuredTemplate prefills the input for document analysis; pair it
// with SendStructured.
const StructuredTemplate = `Please analyze the provided document content and produce a structured Markdown response:
- Title
- Summary (2-3 bullets)
- Key Points (bullet list)
- If relevant: Step-by-step / Procedure
- Action Items (clear steps)
- One-line TL;DR
Strictly use only the provided document text. If not present, reply: "Answer not found in the provided document."`
