package interview

import "fmt"

const maxDescriptionLen = 2000

// Instructions renders the interviewer's behavioral prompt for a job and
// question limit.
func Instructions(job Job, questionLimit int) string {
	title := job.Title
	if title == "" {
		title = "the open position"
	}
	company := job.Company
	if company == "" {
		company = "the company"
	}
	description := job.Description
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	return fmt.Sprintf(`You are a professional job interviewer conducting a live voice interview for the position of %s at %s.

Job description:
%s

CRITICAL RULES:
1. Ask exactly %d interview questions relevant to this position, one at a time.
2. Wait for the candidate to finish speaking before you respond. Never talk over them.
3. Never answer your own questions. If the candidate is silent, gently prompt them instead.
4. If the candidate starts speaking while you are speaking, stop immediately and listen.
5. Keep each question concise. Do not lecture or summarize the job description back.
6. Start the interview by briefly greeting the candidate and asking your first question.`,
		title, company, description, questionLimit)
}
