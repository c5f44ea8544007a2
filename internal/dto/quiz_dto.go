package dto

import "github.com/noah-isme/gema-compliance-api/internal/models"

// QuizResponse is the learner view of a quiz; correct answers are never exposed.
type QuizResponse struct {
	ID              uint                   `json:"id"`
	CourseVersionID uint                   `json:"course_version_id"`
	Title           string                 `json:"title"`
	IsRequired      bool                   `json:"is_required"`
	PassScore       int                    `json:"pass_score"`
	Questions       []QuizQuestionResponse `json:"questions"`
}

// QuizQuestionResponse is one ordered question.
type QuizQuestionResponse struct {
	ID       uint                 `json:"id"`
	Prompt   string               `json:"prompt"`
	Position int                  `json:"position"`
	Choices  []QuizChoiceResponse `json:"choices"`
}

// QuizChoiceResponse is an answer option.
type QuizChoiceResponse struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// NewQuizResponse strips correctness flags from the quiz.
func NewQuizResponse(quiz models.Quiz, passScore int) QuizResponse {
	questions := make([]QuizQuestionResponse, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		choices := make([]QuizChoiceResponse, 0, len(question.Choices))
		for _, choice := range question.Choices {
			choices = append(choices, QuizChoiceResponse{ID: choice.ID, Text: choice.Text})
		}
		questions = append(questions, QuizQuestionResponse{
			ID:       question.ID,
			Prompt:   question.Prompt,
			Position: question.Position,
			Choices:  choices,
		})
	}

	return QuizResponse{
		ID:              quiz.ID,
		CourseVersionID: quiz.CourseVersionID,
		Title:           quiz.Title,
		IsRequired:      quiz.IsRequired,
		PassScore:       passScore,
		Questions:       questions,
	}
}

// QuizSubmitRequest carries one answer per question.
type QuizSubmitRequest struct {
	Answers []QuizAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

// QuizAnswerRequest selects a choice for a question.
type QuizAnswerRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	ChoiceID   uint `json:"choice_id" validate:"required"`
}

// QuizResultResponse reports the graded attempt.
type QuizResultResponse struct {
	AttemptID uint `json:"attempt_id"`
	Score     int  `json:"score"`
	PassScore int  `json:"pass_score"`
	Passed    bool `json:"passed"`
	Correct   int  `json:"correct"`
	Total     int  `json:"total"`
}

// QuizDefinitionRequest replaces the quiz of a course version.
type QuizDefinitionRequest struct {
	Title      string                `json:"title" validate:"omitempty,max=255"`
	IsRequired *bool                 `json:"is_required"`
	Questions  []QuizQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// QuizQuestionRequest defines one question.
type QuizQuestionRequest struct {
	Prompt  string              `json:"prompt" validate:"required"`
	Choices []QuizChoiceRequest `json:"choices" validate:"required,min=2,dive"`
}

// QuizChoiceRequest defines one answer option.
type QuizChoiceRequest struct {
	Text      string `json:"text" validate:"required,max=512"`
	IsCorrect bool   `json:"is_correct"`
}
