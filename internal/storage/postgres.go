package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-bot/internal/models"
)

// PostgresStore is the relational backend. Every write is an upsert on the
// record's primary key.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	err := db.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.UserChannelLink{},
		&models.PendingReferral{},
		&models.ReferralCode{},
		&models.InviteLinkMapping{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetUser(id int64) (*models.User, error) {
	var u models.User
	err := s.db.Where("telegram_id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) SaveUser(u *models.User) error {
	u.LastActive = time.Now()
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(u).Error
}

func (s *PostgresStore) GetAllUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *PostgresStore) RegisterChannel(id int64, name string) error {
	ch := models.Channel{
		TelegramID:   id,
		Name:         name,
		RegisteredAt: time.Now(),
		LastUpdated:  time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "last_updated"}),
	}).Create(&ch).Error
}

func (s *PostgresStore) GetChannel(id int64) (*models.Channel, error) {
	var ch models.Channel
	err := s.db.Where("telegram_id = ?", id).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *PostgresStore) GetAllChannels() ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.db.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *PostgresStore) GetLink(userID, channelID int64) (*models.UserChannelLink, error) {
	var l models.UserChannelLink
	err := s.db.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) SaveLink(l *models.UserChannelLink) error {
	l.LastUpdated = time.Now()
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(l).Error
}

func (s *PostgresStore) GetChannelLinks(channelID int64) ([]models.UserChannelLink, error) {
	var links []models.UserChannelLink
	if err := s.db.Where("channel_id = ?", channelID).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (s *PostgresStore) GetUserLinks(userID int64) ([]models.UserChannelLink, error) {
	var links []models.UserChannelLink
	if err := s.db.Where("user_id = ?", userID).Order("channel_id").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (s *PostgresStore) AddPendingReferral(userID, channelID, referrerID int64) error {
	p := models.PendingReferral{
		UserID:     userID,
		ChannelID:  channelID,
		ReferrerID: referrerID,
		CreatedAt:  time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error
}

func (s *PostgresStore) GetPendingReferral(userID, channelID int64) (*models.PendingReferral, error) {
	var p models.PendingReferral
	err := s.db.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) RemovePendingReferral(userID, channelID int64) error {
	return s.db.Where("user_id = ? AND channel_id = ?", userID, channelID).
		Delete(&models.PendingReferral{}).Error
}

func (s *PostgresStore) CleanupPendingReferrals(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.PendingReferral{})
	return int(res.RowsAffected), res.Error
}

func (s *PostgresStore) StoreReferralCode(code string, referrerID, channelID int64) error {
	c := models.ReferralCode{
		Code:       code,
		ReferrerID: referrerID,
		ChannelID:  channelID,
		CreatedAt:  time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&c).Error
}

func (s *PostgresStore) GetReferralCode(code string) (*models.ReferralCode, error) {
	var c models.ReferralCode
	err := s.db.Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) StoreInviteLink(link string, referrerID, channelID int64, referralCode string) error {
	m := models.InviteLinkMapping{
		InviteLink:   link,
		ReferrerID:   referrerID,
		ChannelID:    channelID,
		ReferralCode: referralCode,
		CreatedAt:    time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (s *PostgresStore) LookupInviteLink(link string) (*models.InviteLinkMapping, error) {
	var m models.InviteLinkMapping
	err := s.db.Where("invite_link = ?", link).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ChannelAggregate computes channel totals with a single query instead of
// scanning links in process.
func (s *PostgresStore) ChannelAggregate(channelID int64) (*ChannelAggregate, error) {
	var agg ChannelAggregate
	err := s.db.Model(&models.UserChannelLink{}).
		Select(
			"COUNT(*) AS total_users, " +
				"COALESCE(SUM(CASE WHEN successful_referrals > 0 THEN 1 ELSE 0 END), 0) AS active_referrers, " +
				"COALESCE(SUM(successful_referrals), 0) AS total_referrals, " +
				"COALESCE(SUM(rewards_claimed), 0) AS rewards_claimed",
		).
		Where("channel_id = ?", channelID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *PostgresStore) Counts() (Counts, error) {
	var users, channels, codes, pending int64
	if err := s.db.Model(&models.User{}).Count(&users).Error; err != nil {
		return Counts{}, err
	}
	if err := s.db.Model(&models.Channel{}).Count(&channels).Error; err != nil {
		return Counts{}, err
	}
	if err := s.db.Model(&models.ReferralCode{}).Count(&codes).Error; err != nil {
		return Counts{}, err
	}
	if err := s.db.Model(&models.PendingReferral{}).Count(&pending).Error; err != nil {
		return Counts{}, err
	}
	return Counts{
		Users:            int(users),
		Channels:         int(channels),
		ReferralCodes:    int(codes),
		PendingReferrals: int(pending),
	}, nil
}
