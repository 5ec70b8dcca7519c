// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"glimmer/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumChannels int
}

var channelCategories = []string{
	"Gaming", "Music", "Art", "Just Chatting", "Science & Tech",
	"Sports", "Food", "Travel", "Creative", "IRL",
}

// builtinEmojis are the emotes every fresh deployment serves.
var builtinEmojis = map[string]string{
	"glimmerWave":  "https://cdn.glimmer.local/emotes/glimmerWave.png",
	"glimmerHype":  "https://cdn.glimmer.local/emotes/glimmerHype.png",
	"glimmerLul":   "https://cdn.glimmer.local/emotes/glimmerLul.png",
	"glimmerSad":   "https://cdn.glimmer.local/emotes/glimmerSad.png",
	"glimmerGG":    "https://cdn.glimmer.local/emotes/glimmerGG.png",
	"glimmerHeart": "https://cdn.glimmer.local/emotes/glimmerHeart.png",
	"glimmerPog":   "https://cdn.glimmer.local/emotes/glimmerPog.png",
	"glimmerRIP":   "https://cdn.glimmer.local/emotes/glimmerRIP.png",
}

// Demo populates users, channels and the builtin emote set. Existing rows are
// kept; seeding is idempotent per username/channel name.
func Demo(db *gorm.DB, opts Options) error {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 25
	}
	if opts.NumChannels <= 0 {
		opts.NumChannels = 8
	}

	gofakeit.Seed(time.Now().UnixNano())

	users, err := seedUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if err := seedChannels(db, users, opts.NumChannels); err != nil {
		return fmt.Errorf("seed channels: %w", err)
	}
	if err := Emojis(db); err != nil {
		return fmt.Errorf("seed emojis: %w", err)
	}

	log.Printf("Seeded %d users, %d channels, %d emotes", opts.NumUsers, opts.NumChannels, len(builtinEmojis))
	return nil
}

func seedUsers(db *gorm.DB, count int) ([]models.User, error) {
	password, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		username := strings.ToLower(gofakeit.Gamertag())
		user := models.User{
			Username:  fmt.Sprintf("%s%d", username, i),
			Email:     fmt.Sprintf("%s%d@%s", username, i, gofakeit.DomainName()),
			Password:  string(password),
			AvatarURL: fmt.Sprintf("https://picsum.photos/seed/%s/128/128", gofakeit.UUID()),
		}
		if err := db.Where("username = ?", user.Username).FirstOrCreate(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func seedChannels(db *gorm.DB, owners []models.User, count int) error {
	if len(owners) == 0 {
		return nil
	}

	for i := 0; i < count; i++ {
		owner := owners[i%len(owners)]
		channel := models.Channel{
			Name:     strings.ToLower(fmt.Sprintf("%s_live", owner.Username)),
			OwnerID:  owner.ID,
			Title:    gofakeit.Sentence(5),
			Category: channelCategories[i%len(channelCategories)],
			IsLive:   i%3 != 0,
		}
		if err := db.Where("name = ?", channel.Name).FirstOrCreate(&channel).Error; err != nil {
			return err
		}
	}
	return nil
}

// Emojis inserts the builtin emote set into the emojis table.
func Emojis(db *gorm.DB) error {
	for name, url := range builtinEmojis {
		emoji := models.Emoji{Name: name, URL: url}
		if err := db.Where("name = ?", name).FirstOrCreate(&emoji).Error; err != nil {
			return err
		}
	}
	return nil
}
