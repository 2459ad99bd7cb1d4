package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

// Client talks to the remote game-session API. The module consumes this API;
// it never implements it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// SessionInfo is the backend's view of a created or running session.
// PlayerID identifies the caller among the session's participants.
type SessionInfo struct {
	SessionID     string `json:"sessionId"`
	PlayerID      string `json:"playerId"`
	Mode          string `json:"mode"`
	QuestionCount int    `json:"questionCount"`
	TimeLimitMs   int64  `json:"timeLimitMs"`
	Status        string `json:"status"`
}

// AnswerResponse is the authoritative outcome of one answer submission.
type AnswerResponse struct {
	Correct         bool   `json:"correct"`
	CorrectAnswerID string `json:"correctAnswerId"`
	Points          int    `json:"points"`
	Score           int    `json:"score"`
	Hearts          int    `json:"hearts"`
}

// SessionStatusResponse lists all participants with their live state.
type SessionStatusResponse struct {
	Status  string                 `json:"status"`
	Players []domain.BackendPlayer `json:"players"`
}

// CompleteResponse is the backend's aggregate result for a finished session.
type CompleteResponse struct {
	Result      string `json:"result"`
	TotalScore  int    `json:"totalScore"`
	HeartsLeft  int    `json:"heartsLeft"`
	RewardCoins int    `json:"rewardCoins"`
}

type wireQuestion struct {
	ID      string `json:"id"`
	Prompt  string `json:"prompt"`
	Answers []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"answers"`
	ShowTimestampMs int64 `json:"showTimestamp"`
}

// StartGameByQuiz creates a session for a fixed quiz.
func (c *Client) StartGameByQuiz(ctx context.Context, quizID string) (SessionInfo, error) {
	var out SessionInfo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/game/quiz/%s/start", quizID), nil, &out)
	return out, err
}

// StartGameByTopic creates a session drawn from a topic with question-count
// and difficulty bounds.
func (c *Client) StartGameByTopic(ctx context.Context, topicID string, questionCount, difficulty int) (SessionInfo, error) {
	body := map[string]int{"questionCount": questionCount, "difficulty": difficulty}
	var out SessionInfo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/game/topic/%s/start", topicID), body, &out)
	return out, err
}

// FetchQuestion loads one question by session and index. The correct answer
// is not disclosed; CorrectIndex is the unknown sentinel until the backend
// reveals it on submission.
func (c *Client) FetchQuestion(ctx context.Context, sessionID string, index int) (domain.Question, error) {
	var wire wireQuestion
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/game/session/%s/question/%d", sessionID, index), nil, &wire); err != nil {
		return domain.Question{}, err
	}
	q := domain.Question{
		ID:           wire.ID,
		Prompt:       wire.Prompt,
		CorrectIndex: domain.CorrectIndexUnknown,
	}
	for i, a := range wire.Answers {
		q.Options = append(q.Options, domain.Option{Index: i, BackendID: a.ID, Text: a.Text})
	}
	return q, nil
}

// SubmitAnswer forwards an answer and returns the authoritative verdict,
// including the revealed correct answer id.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID, answerID string) (AnswerResponse, error) {
	body := map[string]string{"questionId": questionID, "answerId": answerID}
	var out AnswerResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/game/session/%s/answer", sessionID), body, &out)
	return out, err
}

// SessionStatus fetches the live participant list with scores and hearts.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (SessionStatusResponse, error) {
	var out SessionStatusResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/game/session/%s/status", sessionID), nil, &out)
	return out, err
}

// CompleteSession finalizes the session and returns the aggregate result.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (CompleteResponse, error) {
	var out CompleteResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/game/session/%s/complete", sessionID), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		c.log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("api request failed")
		return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
