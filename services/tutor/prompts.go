package tutor

import (
	"fmt"
	"strings"

	"autodidact/models"

	"github.com/samber/lo"
)

const (
	TEACHING_SYSTEM_PROMPT = `You are a knowledgeable, encouraging tutor guiding a learner through one topic of a self-study curriculum.

Topic: %s

Learning objectives for this session:
%s

You are currently working on objective %d of %d:
"%s"

%s

TEACHING RULES:
1. Teach only the current objective. Do not jump ahead.
2. Keep each message focused and under 250 words.
3. When you draw on the reference material, cite it inline as [RID §loc], e.g. [a1b2c3d4 §2.3]. Never invent citations.
4. Adapt to what the learner already showed they know. Skip what they clearly stated correctly.
5. Be warm but concise. No filler praise.

%s`

	PROBE_INSTRUCTION = `Ask the learner one open question to find out what they already know about this objective. Do not explain anything yet. One question only.`

	PROBE_RESPOND_INSTRUCTION = `The learner answered your probe question:

"%s"

Briefly react to their answer: confirm what is right, gently correct what is wrong. Do not start the full explanation yet; end by telling them you will now walk through the idea.`

	EXPLAIN_INSTRUCTION = `Now teach the objective. Give a clear, structured explanation with one concrete example, building on what the learner already knows from the conversation. End by inviting questions.`

	EXPLAIN_RESPOND_INSTRUCTION = `The learner responded to your explanation:

"%s"

Answer their question or react to their comment. Stay on the current objective.`

	MICRO_QUIZ_INSTRUCTION = `Ask the learner one short comprehension question about the objective you just taught. It must be answerable in a sentence or two from the explanation. Ask only the question, no preamble.`

	MICRO_QUIZ_EVAL_INSTRUCTION = `You asked this comprehension question:

"%s"

The learner answered:

"%s"

Tell them whether the answer is right. If it is wrong or incomplete, give the correct answer in one or two sentences. Then say you are moving on.`

	INTRO_SYSTEM_PROMPT = `You are a tutor opening a study session. Be brief and welcoming.`

	INTRO_INSTRUCTION = `Open a tutoring session on "%s".

Objectives for today:
%s

This topic builds on %d prerequisite concept(s) from earlier sessions. Greet the learner in two or three sentences, then ask them to choose exactly one of two options before starting: a short quiz on the prerequisites, or a quick summary of them. End with that question.`

	RECAP_SYSTEM_PROMPT = `You are a tutor refreshing prerequisite concepts before a lesson on "%s".

Prerequisite objectives to refresh:
%s

%s

RULES:
1. Summarize the prerequisites conversationally, a few at a time, checking in with the learner.
2. Cite reference material inline as [RID §loc] when you use it.
3. Keep each message under 200 words.
%s`

	PREREQ_QUIZ_GENERATION_PROMPT = `Write up to %d short-answer questions that check whether a learner still remembers these prerequisite concepts:

%s

Each question must be answerable in one or two sentences. Output ONLY the questions, one per line, each line starting with its number and a period, like:
1. First question
2. Second question`

	PREREQ_QUIZ_FEEDBACK_INSTRUCTION = `You are running a short prerequisite check. The learner was asked:

"%s"

They answered:

"%s"

In at most three sentences, tell them whether they are right and correct any mistake. %s`

	FINAL_TEST_GENERATION_PROMPT = `Write exactly %d test questions for a learner who just finished a lesson. The questions must cover ONLY these objectives:

%s

Mix formats: at least one multiple-choice question (include lettered options A-D in the question text) and the rest short-answer. Every question must be answerable from the objectives above. Output ONLY the questions, one per line, each line starting with its number and a period.`

	QUESTION_WRITER_SYSTEM_PROMPT = `You are an expert test writer. You output only the questions you are asked for, one per line, numbered. No preamble, no commentary.`

	PREREQ_FEEDBACK_SYSTEM_PROMPT = `You are a tutor running a short warm-up quiz before a lesson on "%s". Be brief, accurate and encouraging.`

	GRADER_SYSTEM_PROMPT = `You are a strict but fair grader. You grade one answer at a time against one test question. You always reply in exactly this format, nothing else:

SCORE: <number between 0.0 and 1.0>
REASONING: <one or two sentences>`

	GRADER_INSTRUCTION = `Question:
%s

Learner's answer:
%s

Grade the answer. Partial credit is allowed. SCORE 1.0 means fully correct, 0.0 means entirely wrong or off-topic.`
)

// Fallback texts used when the model provider fails mid-phase. The session
// stays where it is and the learner can simply try again.
const (
	FALLBACK_TUTOR_MESSAGE  = `I hit a temporary problem generating my response. Could you send your last message again?`
	FALLBACK_QUIZ_QUESTION  = `In your own words, explain the main idea we just covered and give one example.`
	FALLBACK_QUIZ_FEEDBACK  = `Thanks - I couldn't fully evaluate that answer right now, but let's keep going.`
	FALLBACK_RECAP_MESSAGE  = `I had trouble preparing the recap just now. Say "ready" when you want to move on to the new material, or ask me to try the recap again.`
	FALLBACK_INTRO_TEMPLATE = `Welcome back! Today we're working on "%s". This topic builds on material from earlier sessions, so before we start: would you like a short quiz on the prerequisites, or a quick summary of them?`
)

func teachingSystemPrompt(st *models.SessionState) string {
	obj, _ := st.CurrentObjective()
	return fmt.Sprintf(TEACHING_SYSTEM_PROMPT,
		st.NodeTitle,
		models.FormatObjectives(st.ObjectivesToTeach),
		st.ObjectiveIdx+1, len(st.ObjectivesToTeach),
		obj.Description,
		referenceSection(st),
		controlInstruction(TeachingControlSchema,
			`{"objective_complete": true}`,
			"the learner's own words demonstrate they already fully understand the current objective"))
}

func recapSystemPrompt(st *models.SessionState) string {
	return fmt.Sprintf(RECAP_SYSTEM_PROMPT,
		st.NodeTitle,
		models.FormatObjectives(st.PrerequisiteObjectives),
		referenceSection(st),
		controlInstruction(RecapControlSchema,
			`{"prereq_complete": true}`,
			"all prerequisites have been covered and the learner confirms they are ready to move on"))
}

// referenceSection renders the citable sources plus retrieved excerpts. Empty
// when the session has no reference material.
func referenceSection(st *models.SessionState) string {
	if len(st.References) == 0 && len(st.RefChunks) == 0 {
		return "No reference material is available for this topic. Teach from general knowledge and do not cite sources."
	}
	var b strings.Builder
	if len(st.References) > 0 {
		b.WriteString("Citable references (cite as [RID §loc]):\n")
		for _, ref := range st.References {
			b.WriteString(fmt.Sprintf("- [%s §%s] %s\n", ref.RID, ref.Location(), ref.Title))
		}
	}
	if len(st.RefChunks) > 0 {
		b.WriteString("\nRelevant excerpts from the reference material:\n")
		for _, chunk := range st.RefChunks {
			b.WriteString("---\n")
			b.WriteString(chunk)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func objectiveDescriptions(objectives []models.Objective) string {
	lines := lo.Map(objectives, func(o models.Objective, i int) string {
		return fmt.Sprintf("%d. %s", i+1, o.Description)
	})
	return strings.Join(lines, "\n")
}
