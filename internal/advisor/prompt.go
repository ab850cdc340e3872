package advisor

import (
	"fmt"
	"regexp"
	"strings"
)

// ImageInstruction is sent with every photo.
const ImageInstruction = "Analyze this photo and describe the hair condition (dryness, shine, frizz, split ends, and visible damage)."

// NoImageAnalysis stands in for the image analysis when no photo was uploaded.
const NoImageAnalysis = "No image provided"

// Advice is the structured recommendation. Fields the model left out are nil.
type Advice struct {
	RecommendedLine *string `json:"recommended_line"`
	Reason          *string `json:"reason"`
	ProductRoutine  *string `json:"product_routine"`
	Alternative     *string `json:"alternative"`
}

// BuildQuery is the retrieval query for a profile and image analysis.
func BuildQuery(quizData, imageAnalysis string) string {
	return fmt.Sprintf("Hair characteristics: %s\nImage analysis: %s\nFind which Gliss line best fits this combination.\n",
		quizData, imageAnalysis)
}

// BuildPrompt assembles the recommendation prompt from the retrieved passages.
func BuildPrompt(passages []string, quizData, imageAnalysis string) string {
	var b strings.Builder
	b.WriteString("You are GlissBot, a professional haircare expert.\n\n")
	b.WriteString("Use the following knowledge and user information to make a recommendation.\n\n")
	b.WriteString("Knowledge base:\n")
	b.WriteString(strings.Join(passages, "\n\n"))
	b.WriteString("\n\nHair quiz answers:\n")
	b.WriteString(quizData)
	b.WriteString("\n\nImage analysis:\n")
	b.WriteString(imageAnalysis)
	b.WriteString("\n\nProvide your response in **this exact format**:\n\n")
	b.WriteString("Recommended line: <name of Gliss line>\n")
	b.WriteString("Reason: <short explanation why this line suits the user>\n")
	b.WriteString("Product routine: <Shampoo + Conditioner + Mask if applicable>\n")
	b.WriteString("Alternative: <optional alternative line and reason>\n\n")
	b.WriteString("Do not add anything else.\n")
	return b.String()
}

// BuildChatPrompt assembles a follow-up answer prompt from the stored submission of the user,
// the retrieved passages and the question.
func BuildChatPrompt(quizData, imageAnalysis, previous string, passages []string, message string) string {
	if previous == "" {
		previous = "None"
	}
	var b strings.Builder
	b.WriteString("You are GlissBot, a friendly AI haircare expert.\n")
	b.WriteString("Use the following info to respond helpfully and naturally.\n\n")
	b.WriteString("User info:\n")
	b.WriteString("Hair quiz answers: ")
	b.WriteString(quizData)
	b.WriteString("\nImage analysis: ")
	b.WriteString(imageAnalysis)
	b.WriteString("\nPrevious recommendation:\n")
	b.WriteString(previous)
	b.WriteString("\n\nKnowledge base:\n")
	b.WriteString(strings.Join(passages, "\n\n"))
	b.WriteString("\n\nUser question:\n")
	b.WriteString(message)
	b.WriteString("\n\nGive a helpful, concise, personalized answer.\n")
	return b.String()
}

var (
	lineRe        = regexp.MustCompile(`(?i)Recommended line:\s*(.*)`)
	reasonRe      = regexp.MustCompile(`(?i)Reason:\s*(.*)`)
	routineRe     = regexp.MustCompile(`(?i)Product routine:\s*(.*)`)
	alternativeRe = regexp.MustCompile(`(?i)Alternative:\s*(.*)`)
)

// ParseAdvice extracts the labeled fields from a model answer, case-insensitively.
func ParseAdvice(text string) Advice {
	text = strings.TrimSpace(text)
	return Advice{
		RecommendedLine: field(lineRe, text),
		Reason:          field(reasonRe, text),
		ProductRoutine:  field(routineRe, text),
		Alternative:     field(alternativeRe, text),
	}
}

func field(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.TrimSpace(m[1])
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
