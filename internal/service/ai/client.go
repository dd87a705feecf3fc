package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/harborlight/henry/backend/internal/config"
	"github.com/harborlight/henry/backend/internal/model/chat"
)

// Client is the remote AI collaborator port. Implementations return a reply
// plus a risk classification and may fail; the session substitutes a fallback
// reply on any error.
type Client interface {
	GetResponse(ctx context.Context, text string, history []chat.Message) (chat.AIReply, error)
}

// Service drives the remote chat model through an eino chain and decodes the
// JSON risk envelope the system prompt asks for.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the model client from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// GetResponse sends the user text plus recent history to the model and
// decodes the reply envelope.
func (s *Service) GetResponse(ctx context.Context, text string, history []chat.Message) (chat.AIReply, error) {
	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   text,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return chat.AIReply{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply, err := parseReply(response.Content)
	if err != nil {
		return chat.AIReply{}, err
	}

	log.Debug().Str("risk", string(reply.RiskLevel)).Int("length", len(reply.Response)).Msg("generated AI reply")
	return reply, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	const historyLimit = 10

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		if msg.IsFromUser {
			history = append(history, schema.UserMessage(msg.Text))
		} else {
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

// parseReply decodes the {"response": ..., "riskLevel": ...} envelope.
// Models occasionally wrap JSON in code fences or prose, so the parser cuts
// out the outermost object before unmarshalling. A missing or empty envelope
// is an error; an unknown risk string is not.
func parseReply(content string) (chat.AIReply, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return chat.AIReply{}, fmt.Errorf("model reply carries no JSON envelope: %.80q", content)
	}

	var envelope struct {
		Response  string `json:"response"`
		RiskLevel string `json:"riskLevel"`
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &envelope); err != nil {
		return chat.AIReply{}, fmt.Errorf("malformed model reply envelope: %w", err)
	}
	if strings.TrimSpace(envelope.Response) == "" {
		return chat.AIReply{}, fmt.Errorf("model reply envelope has an empty response")
	}

	return chat.AIReply{
		Response:  envelope.Response,
		RiskLevel: chat.ParseRiskLevel(envelope.RiskLevel),
	}, nil
}
