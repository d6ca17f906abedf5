package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/common/random"
)

var DB *gorm.DB

// CreateRootAccountIfNeed bootstraps an initial ENTERPRISE tenant when the
// tenants table is empty, so a fresh deployment is immediately usable.
func CreateRootAccountIfNeed() error {
	var tenant Tenant
	if err := DB.First(&tenant).Error; err == nil {
		return nil
	}

	apiKey := random.GenerateKey()
	if config.InitialRootAPIKey != "" {
		apiKey = config.InitialRootAPIKey
	}
	hashed, err := common.Password2Hash("123456")
	if err != nil {
		return err
	}
	root := Tenant{
		Email:          "root@localhost",
		DisplayName:    "Root Tenant",
		PasswordDigest: hashed,
		Tier:           TierEnterprise,
		QuotaMinutes:   TierDefault(TierEnterprise).MonthlyQuotaMinutes,
		APIKey:         apiKey,
		Status:         TenantStatusEnabled,
	}
	if err := DB.Create(&root).Error; err != nil {
		return err
	}
	logger.Logger.Info("no tenant exists, created root tenant",
		zap.String("email", root.Email),
		zap.String("api_key", "sk-"+apiKey))
	return nil
}

func chooseDB(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"):
		return openPostgreSQL(dsn)
	case dsn != "":
		return openMySQL(dsn)
	default:
		return openSQLite()
	}
}

func openPostgreSQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using PostgreSQL as database")
	common.UsingPostgreSQL.Store(true)
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		PrepareStmt: true,
	})
}

func openMySQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using MySQL as database")
	common.UsingMySQL.Store(true)
	normalized, err := common.NormalizeMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(normalized), &gorm.Config{
		PrepareStmt: true,
	})
}

func openSQLite() (*gorm.DB, error) {
	logger.Logger.Info("DRAMA_SQL_DSN not set, using SQLite as database")
	common.UsingSQLite.Store(true)
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", common.SQLitePath, common.SQLiteBusyTimeout)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
	})
}

func InitDB() {
	var err error
	DB, err = chooseDB(config.SQLDSN)
	if err != nil {
		logger.Logger.Fatal("failed to initialize database", zap.Error(err))
		return
	}

	if config.DebugSQLEnabled {
		logger.Logger.Debug("debug sql enabled")
		DB = DB.Debug()
	}

	setDBConns(DB)

	logger.Logger.Info("database migration started")
	if err = migrateDB(); err != nil {
		logger.Logger.Fatal("failed to migrate database", zap.Error(err))
		return
	}
	logger.Logger.Info("database migrated")
}

func migrateDB() error {
	return DB.AutoMigrate(
		&Tenant{},
		&Production{},
		&CollaboratorGrant{},
		&Invitation{},
		&Template{},
		&ProductionSnapshot{},
		&Log{},
	)
}

func setDBConns(db *gorm.DB) *sql.DB {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal("failed to connect database", zap.Error(err))
		return nil
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return sqlDB
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
