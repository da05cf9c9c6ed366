package model

import (
	"context"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	qamodel "github.com/qaforge/convotest/qa/model"
)

// Profile is an authenticated caller. Subject is the JWT sub claim.
type Profile struct {
	Id        string `json:"id" gorm:"type:varchar(64);primaryKey"`
	Subject   string `json:"subject" gorm:"type:varchar(191);uniqueIndex;not null"`
	OrgId     string `json:"org_id" gorm:"type:varchar(64);index"`
	Email     string `json:"email" gorm:"type:varchar(191)"`
	CreatedAt int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// GetProfileBySubject returns qamodel.ErrConfigNotFound when no profile exists.
func GetProfileBySubject(ctx context.Context, subject string) (*Profile, error) {
	if subject == "" {
		return nil, errors.Wrap(qamodel.ErrConfigNotFound, "empty subject")
	}
	var p Profile
	err := DB.WithContext(ctx).Where("subject = ?", subject).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(qamodel.ErrConfigNotFound, "profile for subject %s", subject)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}
	return &p, nil
}

func CreateProfile(ctx context.Context, p *Profile) error {
	return errors.Wrap(DB.WithContext(ctx).Create(p).Error, "create profile")
}
