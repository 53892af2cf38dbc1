//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// Seeds an admin user so the admin dashboard can be used on a fresh
// database.
// Usage: go run scripts/create_admin.go <name> <email> <password>
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run scripts/create_admin.go <name> <email> <password>")
		os.Exit(1)
	}
	name, email, password := os.Args[1], os.Args[2], os.Args[3]

	_ = godotenv.Load()
	uri := os.Getenv("DB_URI")
	dbName := os.Getenv("DB_NAME")
	if uri == "" || dbName == "" {
		fmt.Println("DB_URI and DB_NAME must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		fmt.Printf("failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("failed to hash password: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	users := client.Database(dbName).Collection("users")
	_, err = users.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{
			"$set": bson.M{
				"name":      name,
				"password":  string(hashed),
				"role":      "admin",
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{
				"email":     email,
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		fmt.Printf("failed to upsert admin: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("admin user %s ready\n", email)
}
