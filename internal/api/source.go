package api

import (
	"context"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

// RemoteQuestionSource loads a session's question set from the remote API,
// one indexed fetch per question.
type RemoteQuestionSource struct {
	client *Client
	count  int
}

func NewRemoteQuestionSource(client *Client, questionCount int) *RemoteQuestionSource {
	return &RemoteQuestionSource{client: client, count: questionCount}
}

func (s *RemoteQuestionSource) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, s.count)
	for i := 0; i < s.count; i++ {
		q, err := s.client.FetchQuestion(ctx, sessionID, i)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}
