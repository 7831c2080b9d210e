package model

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type GoogleLoginRequest struct {
	Credential string `json:"credential"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ProfileUpdate carries optional fields; nil means unchanged.
type ProfileUpdate struct {
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

// AdminUserRequest is used for admin create and update. An empty password
// on update keeps the stored hash.
type AdminUserRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Enabled       *bool  `json:"enabled"`
	EmailVerified *bool  `json:"emailVerified"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

type AddToCartRequest struct {
	BikeID   int64 `json:"bikeId"`
	Quantity int   `json:"quantity"`
}

type RemoveFromCartRequest struct {
	BikeID int64 `json:"bikeId"`
}

type PlaceOrderRequest struct {
	PaymentMethod  string `json:"paymentMethod"`
	ShippingMethod string `json:"shippingMethod"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type AuditActor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	IP       string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Details    any        `json:"details,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
