package db

// Sender identifies who wrote a support message
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// IDCard holds the printable identity card fields an administrator edits
type IDCard struct {
	Theme      string `json:"idCardTheme,omitempty"`
	Layout     string `json:"idCardLayout,omitempty"`
	Issuer     string `json:"idCardIssuer,omitempty"`
	BloodGroup string `json:"bloodGroup,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	IssueDate  string `json:"issueDate,omitempty"`
	ValidUntil string `json:"validUntil,omitempty"`
}

// UserRecord is one entry of the users collection. Password is stored as
// entered unless password hashing is enabled.
type UserRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Password      string    `json:"password"`
	Points        int       `json:"points"`
	Streak        int       `json:"streak"`
	LastActive    Timestamp `json:"lastActive"`
	LastRewardDay string    `json:"lastRewardDay,omitempty"`
	ProfileImage  string    `json:"profileImage,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Institution   string    `json:"institution,omitempty"`
	Grade         string    `json:"grade,omitempty"`
	Interests     string    `json:"interests,omitempty"`
	ThemeColor    string    `json:"themeColor,omitempty"`
	IDCard
	IsBlocked bool `json:"isBlocked"`
}

// Public returns a copy safe to hand to clients
func (u UserRecord) Public() UserRecord {
	u.Password = ""
	return u
}

func UserKey(u UserRecord) string { return u.ID }

type ChatMessage struct {
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	Time   Timestamp `json:"time"`
}

// SupportTicket is the admin-facing summary of one user's support log
type SupportTicket struct {
	UserID     string        `json:"userId"`
	UserName   string        `json:"userName"`
	Messages   []ChatMessage `json:"messages"`
	LastUpdate Timestamp     `json:"lastUpdate"`
}

func TicketKey(t SupportTicket) string { return t.UserID }

// LastSender returns the sender of the newest message, or "" when empty
func (t SupportTicket) LastSender() Sender {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[len(t.Messages)-1].Sender
}

// AdminSettings is the global configuration singleton. Every field is
// always written so a stored empty string overrides its default.
type AdminSettings struct {
	AppName           string `json:"appName"`
	AppSubtitle       string `json:"appSubtitle"`
	AppLogo           string `json:"appLogo"`
	AdminName         string `json:"adminName"`
	AdminBio          string `json:"adminBio"`
	AdminImage        string `json:"adminImage"`
	SystemInstruction string `json:"systemInstruction"`
	DailyReward       int    `json:"dailyReward"`
	FooterText        string `json:"footerText"`
	BannerTitle       string `json:"bannerTitle"`
	BannerSubtitle    string `json:"bannerSubtitle"`
	BannerImage       string `json:"bannerImage"`
	BannerBackground  string `json:"bannerBackground"`
}

type Banner struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	LinkURL   string    `json:"linkUrl,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

type Link struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Timestamp   Timestamp `json:"timestamp"`
}

type Notice struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

func BannerKey(b Banner) string { return b.ID }
func LinkKey(l Link) string     { return l.ID }
func NoticeKey(n Notice) string { return n.ID }

// FindUser scans users for id
func FindUser(users []UserRecord, id string) (UserRecord, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return UserRecord{}, false
}
