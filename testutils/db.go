// Package testutils holds helpers shared by tests that need external services.
package testutils

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
)

// createLocalDB (re)creates dbName with the postgres command line tools. Returns false if they are
// missing or fail.
func createLocalDB(dbName string) bool {
	if _, err := exec.LookPath("createdb"); err != nil {
		fmt.Println("Note: createdb not found, skipping tests which need postgres")
		return false
	}
	dropDB := exec.Command("dropdb", "--if-exists", dbName)
	dropDB.Stdout = os.Stdout
	dropDB.Stderr = os.Stderr
	dropDB.Run()
	createDB := exec.Command("createdb", dbName)
	createDB.Stdout = os.Stdout
	createDB.Stderr = os.Stderr
	if err := createDB.Run(); err != nil {
		fmt.Println("createdb failed, skipping tests which need postgres: ", err)
		return false
	}
	return true
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "postgres"
	}
	return u.Username
}

// PrepareDBConnectionString returns a connection string for a scratch database, or "" when no
// postgres is reachable. POSTGRES_USER, POSTGRES_DB, POSTGRES_PASSWORD and POSTGRES_HOST override
// what is inferred from the local environment.
func PrepareDBConnectionString(wantDBName string) string {
	pgUser := os.Getenv("POSTGRES_USER")
	if pgUser == "" {
		pgUser = currentUser()
	}
	dbName := os.Getenv("POSTGRES_DB")
	if dbName == "" {
		if !createLocalDB(wantDBName) {
			return ""
		}
		dbName = wantDBName
	}
	parts := []string{
		"user=" + pgUser,
		"dbname=" + dbName,
		"sslmode=disable",
	}
	// optional, used in CI
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		parts = append(parts, "password="+password)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		parts = append(parts, "host="+host)
	}
	return strings.Join(parts, " ")
}
