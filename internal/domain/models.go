// Package domain holds the core types of the film-distribution state layer.
// JSON field names match the remote store's schema and must round-trip
// unchanged through create/update/fetch.
package domain

// ============================================================
// Identity / Session
// ============================================================

// Role is the profile role assigned at sign-up.
type Role string

const (
	RoleProducer    Role = "producer"
	RoleDistributor Role = "distributor"
	RoleSalesAgent  Role = "sales_agent"
	RoleAdmin       Role = "admin"
)

// User is the application profile keyed by the session's identity.
// It is distinct from the raw auth identity: a session can exist while
// no matching profile row does.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Session is the live authenticated connection as returned by the identity
// service. The state layer treats it as present/absent; token refresh is the
// remote boundary's concern.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"user_id"`
}

// SessionChange is one delivery on the session-change feed.
// Session is nil when the session has been terminated.
type SessionChange struct {
	Session *Session
}

// SignUpMetadata is the profile data attached to account creation.
type SignUpMetadata struct {
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// ============================================================
// Films
// ============================================================

// FilmStatus is the distribution lifecycle state of a film.
type FilmStatus string

const (
	FilmDraft          FilmStatus = "draft"
	FilmInDistribution FilmStatus = "in_distribution"
	FilmDistributed    FilmStatus = "distributed"
	FilmArchived       FilmStatus = "archived"
)

// Film is one tracked film. ID and timestamps are assigned by the remote
// store, never by the client.
type Film struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Director        string     `json:"director"`
	Genre           string     `json:"genre"`
	ReleaseYear     int        `json:"release_year"`
	DurationMinutes int        `json:"duration_minutes"`
	Description     string     `json:"description"`
	Status          FilmStatus `json:"status"`
	Budget          float64    `json:"budget"`
	Revenue         float64    `json:"revenue"`
	UserID          string     `json:"user_id"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
}

// FilmInput is the create payload for a film (no id/timestamps).
type FilmInput struct {
	Title           string     `json:"title"`
	Director        string     `json:"director"`
	Genre           string     `json:"genre"`
	ReleaseYear     int        `json:"release_year"`
	DurationMinutes int        `json:"duration_minutes"`
	Description     string     `json:"description"`
	Status          FilmStatus `json:"status"`
	Budget          float64    `json:"budget"`
	Revenue         float64    `json:"revenue"`
	UserID          string     `json:"user_id"`
}

// ============================================================
// Distributions
// ============================================================

// DistributionType is the channel a distribution deal covers.
type DistributionType string

const (
	DistTheatrical DistributionType = "theatrical"
	DistStreaming  DistributionType = "streaming"
	DistDigital    DistributionType = "digital"
	DistHomeVideo  DistributionType = "home_video"
)

// DistributionStatus is the negotiation/contract state of a deal.
type DistributionStatus string

const (
	DealNegotiating DistributionStatus = "negotiating"
	DealSigned      DistributionStatus = "signed"
	DealActive      DistributionStatus = "active"
	DealCompleted   DistributionStatus = "completed"
	DealCancelled   DistributionStatus = "cancelled"
)

// Distribution is one distribution deal referencing a Film by film_id.
// The reference is not enforced locally: a deal may point at a film that
// has not been fetched.
type Distribution struct {
	ID                string             `json:"id"`
	FilmID            string             `json:"film_id"`
	DistributorName   string             `json:"distributor_name"`
	Territory         string             `json:"territory"`
	DistributionType  DistributionType   `json:"distribution_type"`
	StartDate         string             `json:"start_date"`
	EndDate           string             `json:"end_date"`
	RevenueShare      float64            `json:"revenue_share"`
	GuaranteedMinimum float64            `json:"guaranteed_minimum"`
	Status            DistributionStatus `json:"status"`
	CreatedAt         string             `json:"created_at"`
	UpdatedAt         string             `json:"updated_at"`
}

// DistributionInput is the create payload for a distribution deal.
type DistributionInput struct {
	FilmID            string             `json:"film_id"`
	DistributorName   string             `json:"distributor_name"`
	Territory         string             `json:"territory"`
	DistributionType  DistributionType   `json:"distribution_type"`
	StartDate         string             `json:"start_date"`
	EndDate           string             `json:"end_date"`
	RevenueShare      float64            `json:"revenue_share"`
	GuaranteedMinimum float64            `json:"guaranteed_minimum"`
	Status            DistributionStatus `json:"status"`
}
