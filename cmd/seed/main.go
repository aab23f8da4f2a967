package main

import (
	"log"
	"os"

	"github.com/Baaaki/component-review/internal/config"
	"github.com/Baaaki/component-review/internal/database"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/utils"
)

// seed creates the platform's single admin account
func main() {
	cfg := config.Load()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate:", err)
	}

	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		log.Fatal("Missing environment variables: ADMIN_USERNAME, ADMIN_EMAIL, ADMIN_PASSWORD")
	}

	users := repository.NewUserRepository(db)
	admins, err := users.CountAdmins()
	if err != nil {
		log.Fatal("Failed to look up admins:", err)
	}
	if admins > 0 {
		log.Println("Admin user already exists, nothing to do")
		return
	}

	existing, err := users.GetUserByEmail(adminEmail)
	if err != nil {
		log.Fatal("Failed to look up email:", err)
	}
	if existing != nil {
		log.Fatal("Email already belongs to a non-admin account:", existing.Username)
	}

	passwordHash, err := utils.HashPassword(adminPassword)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	admin := &models.User{
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
		IsActive:     true,
		IsStaff:      true,
	}
	if err := users.CreateUser(admin); err != nil {
		log.Fatal("Failed to create admin:", err)
	}

	log.Println("Admin user created successfully")
	log.Println("   Username:", admin.Username)
	log.Println("   Email:", admin.Email)
}
