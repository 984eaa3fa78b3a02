package render

import (
	"strings"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/rewards"
)

// BlockKind identifies one section of a rendered tutor message.
type BlockKind string

const (
	BlockIntro       BlockKind = "intro"
	BlockSteps       BlockKind = "steps"
	BlockExplanation BlockKind = "explanation"
	BlockFinalAnswer BlockKind = "final_answer"
	BlockExamples    BlockKind = "examples"
	BlockFollowUps   BlockKind = "follow_ups"
	BlockReward      BlockKind = "reward"
)

// Block is one renderable section. Text carries single-value sections,
// Items carries list sections, and the reward footer uses the counters.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`
	XP    int       `json:"xp,omitempty"`
	Coins int       `json:"coins,omitempty"`
}

// View is the full rendering of one tutor message.
type View struct {
	MessageID string  `json:"message_id"`
	Blocks    []Block `json:"blocks"`
	// SpeakText is what playback synthesizes for this message.
	SpeakText string `json:"speak_text"`
	Playable  bool   `json:"playable"`
}

// TutorMessage lays out a tutor reply section by section. Optional sections
// are skipped when empty, the final answer only appears on answer requests,
// and the reward footer is always present.
func TutorMessage(msg api.Message) View {
	r := msg.TutorResponse
	if r == nil {
		// A plain tutor message without structure still renders and plays.
		return View{
			MessageID: msg.ID,
			Blocks: []Block{
				{Kind: BlockExplanation, Text: msg.Content},
				{Kind: BlockReward, XP: msg.XPEarned, Coins: msg.CoinsEarned},
			},
			SpeakText: msg.Content,
			Playable:  strings.TrimSpace(msg.Content) != "",
		}
	}

	var blocks []Block
	var speak []string

	if r.Intro != "" {
		blocks = append(blocks, Block{Kind: BlockIntro, Text: r.Intro})
		speak = append(speak, r.Intro)
	}
	if len(r.Steps) > 0 {
		blocks = append(blocks, Block{Kind: BlockSteps, Items: r.Steps})
		speak = append(speak, r.Steps...)
	}
	if r.Explanation != "" {
		blocks = append(blocks, Block{Kind: BlockExplanation, Text: r.Explanation})
		speak = append(speak, r.Explanation)
	}
	if r.Type == api.RequestAnswer && r.FinalAnswer != "" {
		blocks = append(blocks, Block{Kind: BlockFinalAnswer, Text: r.FinalAnswer})
		speak = append(speak, r.FinalAnswer)
	}
	if len(r.Examples) > 0 {
		blocks = append(blocks, Block{Kind: BlockExamples, Items: r.Examples})
	}
	if len(r.FollowUpQuestions) > 0 {
		blocks = append(blocks, Block{Kind: BlockFollowUps, Items: r.FollowUpQuestions})
	}

	// The reward delta lives inside the structured response; the
	// message-level counters are a fallback for replies that only carry
	// them there.
	xp, coins := r.XP, r.Coins
	if xp == 0 && coins == 0 {
		xp, coins = msg.XPEarned, msg.CoinsEarned
	}
	blocks = append(blocks, Block{Kind: BlockReward, XP: xp, Coins: coins})

	text := strings.Join(speak, " ")
	return View{
		MessageID: msg.ID,
		Blocks:    blocks,
		SpeakText: text,
		Playable:  strings.TrimSpace(text) != "",
	}
}

// RewardSummary is the derived progression view shown alongside a profile.
type RewardSummary struct {
	XP       int `json:"xp"`
	Coins    int `json:"coins"`
	Level    int `json:"level"`
	Progress int `json:"progress"`
}

// Rewards derives the progression numbers from a profile snapshot.
func Rewards(p api.Profile) RewardSummary {
	return RewardSummary{
		XP:       p.XP,
		Coins:    p.Coins,
		Level:    rewards.Level(p.XP),
		Progress: rewards.Progress(p.XP),
	}
}
