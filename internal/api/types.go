package api

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleTutor Role = "assistant"
)

// RequestType classifies an exchange and drives its reward tier.
type RequestType string

const (
	RequestHelp   RequestType = "help"
	RequestHint   RequestType = "hint"
	RequestAnswer RequestType = "answer"
)

// Valid reports whether t is one of the three exchange kinds.
func (t RequestType) Valid() bool {
	switch t {
	case RequestHelp, RequestHint, RequestAnswer:
		return true
	}
	return false
}

// RewardTier returns the XP and coins the backend grants for one exchange of
// the given kind. Display-only; totals are owned by the backend.
func (t RequestType) RewardTier() (xp, coins int) {
	switch t {
	case RequestHelp:
		return 10, 2
	case RequestHint:
		return 5, 1
	case RequestAnswer:
		return 2, 1
	}
	return 0, 0
}

// Conversation is a titled, subject-tagged thread of messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TutorResponse is the structured payload attached to every tutor message.
// Intro and Explanation are always present; the slice fields may be empty and
// FinalAnswer is populated only for answer-type exchanges.
type TutorResponse struct {
	Type              RequestType `json:"type"`
	Intro             string      `json:"intro"`
	Steps             []string    `json:"steps,omitempty"`
	Explanation       string      `json:"explanation"`
	FinalAnswer       string      `json:"final_answer,omitempty"`
	Examples          []string    `json:"examples,omitempty"`
	FollowUpQuestions []string    `json:"follow_up_questions,omitempty"`
	XP                int         `json:"xp"`
	Coins             int         `json:"coins"`
}

// Message is one entry of a conversation's history. User messages carry
// Content; tutor messages carry a TutorResponse.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Role           Role           `json:"role"`
	RequestType    RequestType    `json:"message_type,omitempty"`
	TutorResponse  *TutorResponse `json:"ai_response,omitempty"`
	XPEarned       int            `json:"xp_earned,omitempty"`
	CoinsEarned    int            `json:"coins_earned,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Profile is the authenticated user's backend-owned state.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Grade    string `json:"grade"`
	School   string `json:"school"`
	AIStyle  string `json:"ai_style"`
	XP       int    `json:"xp"`
	Coins    int    `json:"coins"`
	Level    int    `json:"level"`
}

// Achievement is a dashboard badge with its unlock state.
type Achievement struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
}

// DashboardStats are backend-computed usage aggregates.
type DashboardStats struct {
	TotalConversations int `json:"total_conversations"`
	TotalMessages      int `json:"total_messages"`
	SubjectsStudied    int `json:"subjects_studied"`
}

// DashboardUser is the reward summary embedded in the dashboard payload.
type DashboardUser struct {
	FullName    string `json:"full_name"`
	Grade       string `json:"grade"`
	XP          int    `json:"xp"`
	Coins       int    `json:"coins"`
	Level       int    `json:"level"`
	NextLevelXP int    `json:"next_level_xp"`
}

// Dashboard is the aggregate view the backend serves for the home screen.
type Dashboard struct {
	User                DashboardUser  `json:"user"`
	Stats               DashboardStats `json:"stats"`
	RecentConversations []Conversation `json:"recent_conversations"`
	Achievements        []Achievement  `json:"achievements"`
}

// DefaultSubjects is the catalog served when the backend subjects endpoint is
// unreachable. Mirrors the backend's fixed list.
var DefaultSubjects = []string{
	"Matemática", "Português", "Ciências", "História", "Geografia",
	"Inglês", "Física", "Química", "Biologia", "Redação", "Artes",
	"Educação Física", "Filosofia", "Sociologia", "Tema Livre",
}
