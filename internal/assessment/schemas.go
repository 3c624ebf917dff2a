package assessment

import (
	"fmt"
	"strings"

	"github.com/windfall/ielts_service/internal/contract"
)

// Fallbacks used when a provider answer does not satisfy its contract.
var (
	FallbackWritingPrompt = Prompt{
		Kind: Writing,
		Text: "Some people think that technology makes life more complex. To what extent do you agree or disagree?",
	}
	FallbackSpeakingPrompt = Prompt{
		Kind:  Speaking,
		Title: SpeakingPromptTitle,
		Text:  "Describe a memorable event in your life and explain why it was special.",
	}
	FallbackWritingGrade = GradeResult{
		OverallScore: 6.0,
		SubScores:    map[string]float64{},
		Feedback:     "Default fallback: parsing failed.",
	}
	FallbackSpeakingGrade = GradeResult{
		OverallScore: 6.0,
		SubScores: map[string]float64{
			SubFluency:         6.0,
			SubLexicalResource: 6.0,
			SubGrammar:         6.0,
			SubPronunciation:   6.0,
		},
		Feedback: "Default fallback: JSON parsing failed.",
	}
)

// SpeakingPromptTitle labels generated speaking cards.
const SpeakingPromptTitle = "IELTS Speaking Part 2 - AI Gen"

func requireContent(p Prompt) error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("prompt content is blank")
	}
	return nil
}

var writingPromptSchema = contract.Schema[Prompt]{
	Name:     "writing_prompt",
	Required: []contract.Field{{Name: "Content", Kind: contract.String}},
	Build: func(v contract.Values) Prompt {
		return Prompt{Kind: Writing, Text: strings.TrimSpace(v.Text("Content"))}
	},
	Validate: requireContent,
}

// A blank Title gets the default label.
var speakingPromptSchema = contract.Schema[Prompt]{
	Name: "speaking_prompt",
	Required: []contract.Field{
		{Name: "Title", Kind: contract.String},
		{Name: "Content", Kind: contract.String},
	},
	Build: func(v contract.Values) Prompt {
		title := strings.TrimSpace(v.Text("Title"))
		if title == "" {
			title = SpeakingPromptTitle
		}
		return Prompt{Kind: Speaking, Title: title, Text: strings.TrimSpace(v.Text("Content"))}
	},
	Validate: requireContent,
}

var writingGradeSchema = contract.Schema[GradeResult]{
	Name: "writing_grade",
	Required: []contract.Field{
		{Name: "score", Kind: contract.Number},
		{Name: "feedback", Kind: contract.String},
	},
	Build: func(v contract.Values) GradeResult {
		return GradeResult{OverallScore: v.Number("score"), SubScores: map[string]float64{}, Feedback: v.Text("feedback")}
	},
}

var speakingGradeSchema = contract.Schema[GradeResult]{
	Name: "speaking_grade",
	Required: []contract.Field{
		{Name: "score", Kind: contract.Number},
		{Name: SubFluency, Kind: contract.Number},
		{Name: SubLexicalResource, Kind: contract.Number},
		{Name: SubGrammar, Kind: contract.Number},
		{Name: SubPronunciation, Kind: contract.Number},
		{Name: "feedback", Kind: contract.String},
	},
	Build: func(v contract.Values) GradeResult {
		return GradeResult{
			OverallScore: v.Number("score"),
			SubScores: map[string]float64{
				SubFluency:         v.Number(SubFluency),
				SubLexicalResource: v.Number(SubLexicalResource),
				SubGrammar:         v.Number(SubGrammar),
				SubPronunciation:   v.Number(SubPronunciation),
			},
			Feedback: v.Text("feedback"),
		}
	},
}

// cloneGrade copies the fallback so callers never share its map. The copy's
// SubScores is never nil.
func cloneGrade(g GradeResult) GradeResult {
	subs := make(map[string]float64, len(g.SubScores))
	for k, v := range g.SubScores {
		subs[k] = v
	}
	g.SubScores = subs
	return g
}

const writingPromptTemplate = `You are an IELTS Writing Task 2 question generator.
Generate ONE realistic IELTS Writing Task 2 question. It must be academic, one or two sentences, in English.
Reply with exactly one JSON object and nothing else:
{"Content":"<the question>"}`

const speakingPromptTemplate = `You are an IELTS Speaking Part 2 question generator.
Generate ONE realistic IELTS Speaking Part 2 cue card: a topic sentence followed by the usual "You should say" points.
Reply with exactly one JSON object and nothing else:
{"Title":"` + SpeakingPromptTitle + `","Content":"<the cue card>"}`

const writingGradeTemplate = `You are an IELTS Writing examiner.
Grade the essay below against the task using the official band descriptors.
Reply with exactly one JSON object and nothing else:
{"score": <overall band from 0 to 9, halves allowed>, "feedback": "<about six sentences naming concrete mistakes in this essay and how to fix them>"}

Task:
%s

Essay:
%s`

const speakingGradeTemplate = `You are an IELTS Speaking examiner.
Grade the transcribed answer below against the topic using the official band descriptors.
Reply with exactly one JSON object and nothing else:
{"score": <overall band 0-9>, "Fluency": <0-9>, "LexicalResource": <0-9>, "Grammar": <0-9>, "Pronunciation": <0-9>, "feedback": "<about three sentences of specific advice>"}

Topic:
%s

Transcript:
%s`
