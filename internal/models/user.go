package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Address struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Street  string             `bson:"street,omitempty" json:"street,omitempty"`
	City    string             `bson:"city,omitempty" json:"city,omitempty"`
	State   string             `bson:"state,omitempty" json:"state,omitempty"`
	Zip     string             `bson:"zip,omitempty" json:"zip,omitempty"`
	Country string             `bson:"country,omitempty" json:"country,omitempty"`
}

// UserImage points at a profile picture held in object storage.
type UserImage struct {
	URL      string `bson:"url,omitempty" json:"url,omitempty"`
	PublicID string `bson:"publicId,omitempty" json:"publicId,omitempty"`
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName string             `bson:"firstName" json:"firstName"`
	LastName  string             `bson:"lastName" json:"lastName"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"` // Hide from JSON responses
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address   []Address          `bson:"address,omitempty" json:"address,omitempty"`
	UserImage *UserImage         `bson:"userImage,omitempty" json:"-"`
	Role      Role               `bson:"role" json:"role"`

	// Doctor
	Specialization      string `bson:"specialization,omitempty" json:"specialization,omitempty"`
	LicenseNumber       string `bson:"licenseNumber,omitempty" json:"licenseNumber,omitempty"`
	HospitalAffiliation string `bson:"hospitalAffiliation,omitempty" json:"hospitalAffiliation,omitempty"`

	// Patient
	DateOfBirth    *time.Time          `bson:"dateOfBirth,omitempty" json:"dateOfBirth,omitempty"`
	Gender         Gender              `bson:"gender,omitempty" json:"gender,omitempty"`
	AssignedDoctor *primitive.ObjectID `bson:"assignedDoctor,omitempty" json:"assignedDoctor,omitempty"`

	LastLogin *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// DisplayName is the "first last" form carried in access tokens.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ImageURL returns the profile image URL or "" when none is set.
func (u *User) ImageURL() string {
	if u.UserImage == nil {
		return ""
	}
	return u.UserImage.URL
}

// ApplyProfile copies the role-specific fields of p onto the user.
func (u *User) ApplyProfile(p RoleProfile) {
	u.Role = p.Role()
	switch v := p.(type) {
	case DoctorProfile:
		u.Specialization = v.Specialization
		u.LicenseNumber = v.LicenseNumber
		u.HospitalAffiliation = v.HospitalAffiliation
	case PatientProfile:
		dob := v.DateOfBirth
		u.Gender = v.Gender
		u.DateOfBirth = &dob
	}
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserView is the public shape of a user returned by the API.
type UserView struct {
	ID                  string     `json:"id"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	Phone               string     `json:"phone,omitempty"`
	Address             []Address  `json:"address,omitempty"`
	UserImage           *string    `json:"userImage"`
	Specialization      string     `json:"specialization,omitempty"`
	LicenseNumber       string     `json:"licenseNumber,omitempty"`
	HospitalAffiliation string     `json:"hospitalAffiliation,omitempty"`
	DateOfBirth         *time.Time `json:"dateOfBirth,omitempty"`
	Gender              Gender     `json:"gender,omitempty"`
	AssignedDoctor      string     `json:"assignedDoctor,omitempty"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
}

func NewUserView(u *User) UserView {
	v := UserView{
		ID:                  u.ID.Hex(),
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Email:               u.Email,
		Role:                u.Role,
		Phone:               u.Phone,
		Address:             u.Address,
		Specialization:      u.Specialization,
		LicenseNumber:       u.LicenseNumber,
		HospitalAffiliation: u.HospitalAffiliation,
		DateOfBirth:         u.DateOfBirth,
		Gender:              u.Gender,
		LastLogin:           u.LastLogin,
	}
	if url := u.ImageURL(); url != "" {
		v.UserImage = &url
	}
	if u.AssignedDoctor != nil {
		v.AssignedDoctor = u.AssignedDoctor.Hex()
	}
	return v
}

// WithAddressIDs gives every address without an id a fresh one.
func WithAddressIDs(addrs []Address) []Address {
	for i := range addrs {
		if addrs[i].ID.IsZero() {
			addrs[i].ID = primitive.NewObjectID()
		}
	}
	return addrs
}
