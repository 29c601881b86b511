package models

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleLabTechnician Role = "lab_technician"
	RoleAdmin         Role = "admin"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

var (
	ErrInvalidRole      = errors.New("invalid role")
	ErrDoctorFields     = errors.New("doctor requires specialization and license number")
	ErrPatientFields    = errors.New("patient requires gender and date of birth")
	ErrInvalidGender    = errors.New("invalid gender")
	ErrInvalidBirthDate = errors.New("invalid date of birth")
)

var birthDateLayouts = []string{"2006-01-02", time.RFC3339}

// ParseRole maps the wire value to a Role. An empty value means patient.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case "", RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleLabTechnician:
		return RoleLabTechnician, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

// RoleProfile is the role-specific part of a user. Exactly one variant exists per Role.
type RoleProfile interface {
	Role() Role
}

type PatientProfile struct {
	Gender      Gender
	DateOfBirth time.Time
}

type DoctorProfile struct {
	Specialization      string
	LicenseNumber       string
	HospitalAffiliation string
}

type LabTechnicianProfile struct{}

type AdminProfile struct{}

func (PatientProfile) Role() Role       { return RolePatient }
func (DoctorProfile) Role() Role        { return RoleDoctor }
func (LabTechnicianProfile) Role() Role { return RoleLabTechnician }
func (AdminProfile) Role() Role         { return RoleAdmin }

// ProfileInput carries the raw role-conditional registration fields.
type ProfileInput struct {
	Role                string
	Specialization      string
	LicenseNumber       string
	HospitalAffiliation string
	Gender              string
	DateOfBirth         string
}

// NewRoleProfile validates in and returns the variant for its role.
func NewRoleProfile(in ProfileInput) (RoleProfile, error) {
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	switch role {
	case RoleDoctor:
		spec := strings.TrimSpace(in.Specialization)
		license := strings.TrimSpace(in.LicenseNumber)
		if spec == "" || license == "" {
			return nil, ErrDoctorFields
		}
		return DoctorProfile{
			Specialization:      spec,
			LicenseNumber:       license,
			HospitalAffiliation: strings.TrimSpace(in.HospitalAffiliation),
		}, nil
	case RolePatient:
		if strings.TrimSpace(in.Gender) == "" || strings.TrimSpace(in.DateOfBirth) == "" {
			return nil, ErrPatientFields
		}
		gender := Gender(strings.ToLower(strings.TrimSpace(in.Gender)))
		switch gender {
		case GenderMale, GenderFemale, GenderOther:
		default:
			return nil, ErrInvalidGender
		}
		dob, err := parseBirthDate(in.DateOfBirth)
		if err != nil {
			return nil, err
		}
		return PatientProfile{Gender: gender, DateOfBirth: dob}, nil
	case RoleLabTechnician:
		return LabTechnicianProfile{}, nil
	case RoleAdmin:
		return AdminProfile{}, nil
	}
	return nil, ErrInvalidRole
}

func parseBirthDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidBirthDate
}
