package domain

// Role of an authenticated user
type Role string

const (
	RoleEmployee Role = "EMPLOYEE" // Regular employee, owns a wallet
	RoleHR       Role = "HR"       // Company HR, may adjust balances
	RoleAdmin    Role = "ADMIN"    // Platform admin
)

// CanAdjust reports whether the role may grant or deduct credits
func (r Role) CanAdjust() bool {
	return r == RoleAdmin || r == RoleHR
}

// User Model
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`                                                   // Primary key
	Username  string `gorm:"type:varchar(64);unique;not null" json:"username"`                       // Unique username
	Password  string `gorm:"not null" json:"-"`                                                      // Hashed password
	Role      Role   `gorm:"type:varchar(16);default:EMPLOYEE" json:"role"`                          // EMPLOYEE, HR or ADMIN
	IsDemo    bool   `gorm:"not null;default:false" json:"is_demo"`                                  // Demo account, excluded from reporting
	CompanyID *uint  `gorm:"index" json:"company_id,omitempty"`                                      // Provisioning company, if any
	Wallet    Wallet `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"wallet,omitempty"` // One-to-one relationship with Wallet
}

// Actor is the authenticated caller of a privileged operation
type Actor struct {
	ID   uint // User ID from the token
	Role Role // Role as stored, never as claimed
}
