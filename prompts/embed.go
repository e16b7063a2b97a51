package prompts

import _ "embed"

//go:embed interviewer/context.md.tmpl
var InterviewerContextTemplate string

//go:embed interviewer/follow_up.md.tmpl
var FollowUpTemplate string

//go:embed interviewer/questions.yaml
var DefaultQuestionBank []byte

//go:embed summary/summary.md.tmpl
var SummaryTemplate string
