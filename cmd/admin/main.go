// Command admin creates a super-admin account directly in the database.
// Super admins are never created through the API; this tool is the only way
// to mint one.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/config"
	"github.com/dstepanovs/teamplan/internal/server/identity"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

const fieldCipherPurpose = "teamplan/pii/v1"

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	secret, err := cfg.EncryptionSecret()
	if err != nil {
		return err
	}
	cipher, err := cryptox.NewFieldCipher(secret, fieldCipherPurpose)
	common.WipeByteArray(secret)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	passwordHash, err := identity.BcryptHasher{}.Hash(string(password))
	if err != nil {
		return err
	}

	codec := pii.NewCodec(cipher, logging.NopLogger{})
	rec, err := codec.EncryptEntity(pii.KindUser, pii.Record{"email": email})
	if err != nil {
		return err
	}
	rec["emailHash"] = cryptox.EmailDigest(email)
	rec["passwordHash"] = passwordHash
	rec["role"] = "superadmin"

	created, err := store.NewPostgres(db).Create(ctx, pii.KindUser, rec)
	if err != nil {
		return err
	}

	fmt.Printf("super admin created: %v\n", created["id"])
	return nil
}
