package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"referral-bot/internal/models"
)

const (
	usersFile       = "users.json"
	channelsFile    = "channels.json"
	linksFile       = "links.json"
	pendingFile     = "pending.json"
	codesFile       = "referral_codes.json"
	inviteLinksFile = "invite_links.json"
)

// FileStore persists every collection as a JSON object file under dir. A
// single coarse mutex guards each read-or-write; record-level locking is the
// engine's job.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &FileStore{dir: dir}
	for _, name := range []string{usersFile, channelsFile, linksFile, pendingFile, codesFile, inviteLinksFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
				return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
			}
		}
	}
	return s, nil
}

func loadJSON[T any](path string) (map[string]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	records := map[string]T{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// saveJSON keeps the previous file as a .backup until the new contents are
// written, restoring it if the write fails.
func saveJSON[T any](path string, records map[string]T) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	backup := path + ".backup"
	hadPrevious := false
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", path, err)
		}
		hadPrevious = true
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(backup, path); restoreErr != nil {
				log.Error().Err(restoreErr).Str("file", path).Msg("Failed to restore backup")
			}
		}
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if hadPrevious {
		_ = os.Remove(backup)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func userKey(id int64) string { return strconv.FormatInt(id, 10) }

func pairKey(userID, channelID int64) string {
	return fmt.Sprintf("%d_%d", userID, channelID)
}

func (s *FileStore) GetUser(id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadJSON[models.User](s.path(usersFile))
	if err != nil {
		return nil, err
	}
	if u, ok := users[userKey(id)]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *FileStore) SaveUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadJSON[models.User](s.path(usersFile))
	if err != nil {
		return err
	}
	u.LastActive = time.Now()
	users[userKey(u.TelegramID)] = *u
	return saveJSON(s.path(usersFile), users)
}

func (s *FileStore) GetAllUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadJSON[models.User](s.path(usersFile))
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	return out, nil
}

func (s *FileStore) RegisterChannel(id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := loadJSON[models.Channel](s.path(channelsFile))
	if err != nil {
		return err
	}

	now := time.Now()
	ch, ok := channels[userKey(id)]
	if !ok {
		ch = models.Channel{TelegramID: id, RegisteredAt: now}
	}
	ch.Name = name
	ch.LastUpdated = now
	channels[userKey(id)] = ch
	return saveJSON(s.path(channelsFile), channels)
}

func (s *FileStore) GetChannel(id int64) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := loadJSON[models.Channel](s.path(channelsFile))
	if err != nil {
		return nil, err
	}
	if ch, ok := channels[userKey(id)]; ok {
		return &ch, nil
	}
	return nil, nil
}

func (s *FileStore) GetAllChannels() ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := loadJSON[models.Channel](s.path(channelsFile))
	if err != nil {
		return nil, err
	}
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch)
	}
	return out, nil
}

func (s *FileStore) GetLink(userID, channelID int64) (*models.UserChannelLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := loadJSON[models.UserChannelLink](s.path(linksFile))
	if err != nil {
		return nil, err
	}
	if l, ok := links[pairKey(userID, channelID)]; ok {
		return &l, nil
	}
	return nil, nil
}

func (s *FileStore) SaveLink(l *models.UserChannelLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := loadJSON[models.UserChannelLink](s.path(linksFile))
	if err != nil {
		return err
	}
	l.LastUpdated = time.Now()
	links[pairKey(l.UserID, l.ChannelID)] = *l
	return saveJSON(s.path(linksFile), links)
}

func (s *FileStore) GetChannelLinks(channelID int64) ([]models.UserChannelLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := loadJSON[models.UserChannelLink](s.path(linksFile))
	if err != nil {
		return nil, err
	}
	var out []models.UserChannelLink
	for _, l := range links {
		if l.ChannelID == channelID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *FileStore) GetUserLinks(userID int64) ([]models.UserChannelLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := loadJSON[models.UserChannelLink](s.path(linksFile))
	if err != nil {
		return nil, err
	}
	var out []models.UserChannelLink
	for _, l := range links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *FileStore) AddPendingReferral(userID, channelID, referrerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := loadJSON[models.PendingReferral](s.path(pendingFile))
	if err != nil {
		return err
	}
	pending[pairKey(userID, channelID)] = models.PendingReferral{
		UserID:     userID,
		ChannelID:  channelID,
		ReferrerID: referrerID,
		CreatedAt:  time.Now(),
	}
	return saveJSON(s.path(pendingFile), pending)
}

func (s *FileStore) GetPendingReferral(userID, channelID int64) (*models.PendingReferral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := loadJSON[models.PendingReferral](s.path(pendingFile))
	if err != nil {
		return nil, err
	}
	if p, ok := pending[pairKey(userID, channelID)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *FileStore) RemovePendingReferral(userID, channelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := loadJSON[models.PendingReferral](s.path(pendingFile))
	if err != nil {
		return err
	}
	key := pairKey(userID, channelID)
	if _, ok := pending[key]; !ok {
		return nil
	}
	delete(pending, key)
	return saveJSON(s.path(pendingFile), pending)
}

func (s *FileStore) CleanupPendingReferrals(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := loadJSON[models.PendingReferral](s.path(pendingFile))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, p := range pending {
		if p.CreatedAt.Before(cutoff) {
			delete(pending, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, saveJSON(s.path(pendingFile), pending)
}

func (s *FileStore) StoreReferralCode(code string, referrerID, channelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := loadJSON[models.ReferralCode](s.path(codesFile))
	if err != nil {
		return err
	}
	codes[code] = models.ReferralCode{
		Code:       code,
		ReferrerID: referrerID,
		ChannelID:  channelID,
		CreatedAt:  time.Now(),
	}
	return saveJSON(s.path(codesFile), codes)
}

func (s *FileStore) GetReferralCode(code string) (*models.ReferralCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := loadJSON[models.ReferralCode](s.path(codesFile))
	if err != nil {
		return nil, err
	}
	if c, ok := codes[code]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *FileStore) StoreInviteLink(link string, referrerID, channelID int64, referralCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invites, err := loadJSON[models.InviteLinkMapping](s.path(inviteLinksFile))
	if err != nil {
		return err
	}
	invites[link] = models.InviteLinkMapping{
		InviteLink:   link,
		ReferrerID:   referrerID,
		ChannelID:    channelID,
		ReferralCode: referralCode,
		CreatedAt:    time.Now(),
	}
	return saveJSON(s.path(inviteLinksFile), invites)
}

func (s *FileStore) LookupInviteLink(link string) (*models.InviteLinkMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invites, err := loadJSON[models.InviteLinkMapping](s.path(inviteLinksFile))
	if err != nil {
		return nil, err
	}
	if m, ok := invites[link]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *FileStore) Counts() (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadJSON[models.User](s.path(usersFile))
	if err != nil {
		return Counts{}, err
	}
	channels, err := loadJSON[models.Channel](s.path(channelsFile))
	if err != nil {
		return Counts{}, err
	}
	codes, err := loadJSON[models.ReferralCode](s.path(codesFile))
	if err != nil {
		return Counts{}, err
	}
	pending, err := loadJSON[models.PendingReferral](s.path(pendingFile))
	if err != nil {
		return Counts{}, err
	}

	return Counts{
		Users:            len(users),
		Channels:         len(channels),
		ReferralCodes:    len(codes),
		PendingReferrals: len(pending),
	}, nil
}
