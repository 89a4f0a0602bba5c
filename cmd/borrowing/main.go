package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"library-system/pkg/borrowing"
	"library-system/pkg/collaborators"
	"library-system/pkg/database"
	"library-system/pkg/models"
	"library-system/pkg/notices"
	"library-system/pkg/policy"
)

var (
	db        *gorm.DB
	svc       *borrowing.Service
	scheduler *notices.Scheduler
	pol       policy.Policy
)

func main() {
	log.Println("Starting borrowing service...")

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	host := getEnv("DB_HOST", "postgres")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "program")
	password := getEnv("DB_PASSWORD", "test")
	dbname := getEnv("DB_NAME", "borrowing")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	log.Printf("Connecting to database: %s@%s:%s/%s", user, host, port, dbname)

	var err error
	db, err = database.Connect(dsn, 10)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}

	pol, err = policy.FromEnv()
	if err != nil {
		log.Fatalf("Invalid lending policy: %v", err)
	}
	log.Printf("Lending policy: %d day loans, %d active loans max, %d grace days",
		pol.LoanPeriodDays, pol.MaxActiveLoans, pol.GracePeriodDays)

	var members borrowing.MemberDirectory
	if url := getEnv("MEMBER_SERVICE_URL", ""); url != "" {
		members = collaborators.NewMemberClient(url)
		log.Printf("Member service: %s", url)
	}
	var catalog borrowing.Catalog
	if url := getEnv("CATALOG_SERVICE_URL", ""); url != "" {
		catalog = collaborators.NewCatalogClient(url)
		log.Printf("Catalog service: %s", url)
	}

	svc = borrowing.NewService(db, pol, members, catalog)
	scheduler = notices.NewScheduler()

	if getEnv("SEED_TEST_DATA", "false") == "true" {
		seedTestData()
	}

	server := gin.Default()
	server.POST("/api/v1/copies", registerCopy)
	server.GET("/api/v1/copies/:copyUid", getCopy)
	server.POST("/api/v1/loans", borrowBook)
	server.POST("/api/v1/loans/:transactionUid/return", returnBook)
	server.GET("/api/v1/loans/:transactionUid/fee", getFee)
	server.GET("/api/v1/loans/overdue", listOverdue)
	server.POST("/api/v1/loans/overdue/sweep", sweepOverdue)
	server.GET("/api/v1/members/:memberUid/loans", getMemberLoans)
	server.GET("/api/v1/members/:memberUid/history", getMemberHistory)
	server.GET("/api/v1/members/:memberUid/risk", getMemberRisk)
	server.GET("/manage/health", healthCheck)

	addr := ":" + getEnv("PORT", "8080")
	log.Printf("Borrowing service starting on %s", addr)
	if err := server.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func registerCopy(c *gin.Context) {
	var request struct {
		CopyUid    string `json:"copyUid"`
		BookUid    string `json:"bookUid"`
		CopyNumber string `json:"copyNumber"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	copy, err := svc.RegisterCopy(request.CopyUid, request.BookUid, request.CopyNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, copyJSON(copy))
}

func getCopy(c *gin.Context) {
	copyUid := c.Param("copyUid")

	copy, err := svc.GetCopy(copyUid)
	if err != nil {
		respondError(c, err)
		return
	}

	response := copyJSON(copy)
	loan, err := svc.ActiveLoanForCopy(copyUid)
	if err != nil {
		respondError(c, err)
		return
	}
	if loan != nil {
		response["activeLoan"] = transactionJSON(loan, time.Now())
	}
	c.JSON(http.StatusOK, response)
}

func borrowBook(c *gin.Context) {
	var request struct {
		CopyUid        string `json:"copyUid" binding:"required"`
		MemberUid      string `json:"memberUid" binding:"required"`
		LoanPeriodDays int    `json:"loanPeriodDays"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	transaction, err := svc.Borrow(request.CopyUid, request.MemberUid, request.LoanPeriodDays)
	if err != nil {
		respondError(c, err)
		return
	}

	scheduler.Enqueue(notices.Plan(transaction, pol)...)
	c.JSON(http.StatusCreated, transactionJSON(transaction, time.Now()))
}

func returnBook(c *gin.Context) {
	transactionUid := c.Param("transactionUid")
	var request struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	transaction, assessment, err := svc.Return(transactionUid, request.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	response := transactionJSON(transaction, time.Now())
	response["fee"] = assessment
	c.JSON(http.StatusOK, response)
}

func getFee(c *gin.Context) {
	transactionUid := c.Param("transactionUid")
	asOf, ok := parseAsOf(c)
	if !ok {
		return
	}

	transaction, assessment, err := svc.Fee(transactionUid, asOf, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactionUid": transaction.TransactionUid,
		"status":         transaction.EffectiveStatus(asOf),
		"dueDate":        transaction.DueDate.Format("2006-01-02"),
		"daysOverdue":    assessment.DaysOverdue,
		"feeAmount":      assessment.FeeAmount,
		"withinGrace":    assessment.WithinGrace,
		"graceRemaining": assessment.GraceRemaining,
	})
}

func listOverdue(c *gin.Context) {
	asOf, ok := parseAsOf(c)
	if !ok {
		return
	}

	assessed, err := svc.ListOverdueAssessed(asOf, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(assessed))
	for i := range assessed {
		item := transactionJSON(&assessed[i].Transaction, asOf)
		item["daysOverdue"] = assessed[i].Assessment.DaysOverdue
		item["feeAmount"] = assessed[i].Assessment.FeeAmount
		items[i] = item
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "totalElements": len(items)})
}

func sweepOverdue(c *gin.Context) {
	asOf, ok := parseAsOf(c)
	if !ok {
		return
	}

	enqueued, err := scheduler.SweepOverdue(svc, pol, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	due := scheduler.DueNow(asOf)
	c.JSON(http.StatusOK, gin.H{"enqueued": enqueued, "due": due})
}

func getMemberLoans(c *gin.Context) {
	memberUid := c.Param("memberUid")

	loans, err := svc.ActiveLoansForMember(memberUid)
	if err != nil {
		respondError(c, err)
		return
	}
	now := time.Now()
	items := make([]gin.H, len(loans))
	for i := range loans {
		items[i] = transactionJSON(&loans[i], now)
	}
	c.JSON(http.StatusOK, items)
}

func getMemberHistory(c *gin.Context) {
	memberUid := c.Param("memberUid")

	loans, err := svc.HistoryForMember(memberUid)
	if err != nil {
		respondError(c, err)
		return
	}
	now := time.Now()
	items := make([]gin.H, len(loans))
	for i := range loans {
		items[i] = transactionJSON(&loans[i], now)
	}
	c.JSON(http.StatusOK, items)
}

func getMemberRisk(c *gin.Context) {
	memberUid := c.Param("memberUid")
	asOf, ok := parseAsOf(c)
	if !ok {
		return
	}

	profile, err := svc.RiskProfile(memberUid, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func healthCheck(c *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Borrowing service is active",
	})
}

// parseAsOf reads the optional asOf=YYYY-MM-DD query parameter, defaulting
// to now. On a malformed value it writes the 400 itself and returns false.
func parseAsOf(c *gin.Context) (time.Time, bool) {
	raw := c.Query("asOf")
	if raw == "" {
		return time.Now(), true
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid asOf date. Use YYYY-MM-DD"})
		return time.Time{}, false
	}
	return asOf, true
}

func respondError(c *gin.Context, err error) {
	var domainErr *borrowing.Error
	if !errors.As(err, &domainErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch domainErr.Kind {
	case borrowing.KindNotFound:
		status = http.StatusNotFound
	case borrowing.KindConflict:
		status = http.StatusConflict
	case borrowing.KindLimitExceeded, borrowing.KindPolicyViolation:
		status = http.StatusForbidden
	case borrowing.KindInvalidInput:
		status = http.StatusBadRequest
	case borrowing.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error":  domainErr.Detail,
		"kind":   domainErr.Kind,
		"entity": domainErr.Entity,
		"id":     domainErr.ID,
	})
}

func copyJSON(copy *models.Copy) gin.H {
	return gin.H{
		"copyUid":    copy.CopyUid,
		"bookUid":    copy.BookUid,
		"copyNumber": copy.CopyNumber,
		"status":     copy.Status,
	}
}

func transactionJSON(t *models.BorrowingTransaction, asOf time.Time) gin.H {
	item := gin.H{
		"transactionUid": t.TransactionUid,
		"copyUid":        t.CopyUid,
		"memberUid":      t.MemberUid,
		"status":         t.EffectiveStatus(asOf),
		"borrowDate":     t.BorrowDate.Format("2006-01-02"),
		"dueDate":        t.DueDate.Format("2006-01-02"),
	}
	if t.ReturnDate != nil {
		item["returnDate"] = t.ReturnDate.Format("2006-01-02")
	}
	if t.Notes != "" {
		item["notes"] = t.Notes
	}
	return item
}

func seedTestData() {
	copies := []models.Copy{
		{CopyUid: "1f0c5c7e-9a1f-4a8f-b2d5-0c3a4a2d9e01", BookUid: "f7cdc58f-2caf-4b15-9727-f89dcc629b27", CopyNumber: "C-001", Status: models.CopyStatusAvailable},
		{CopyUid: "2b8e1d44-63f2-4f11-a7e9-5d8c0b6f7a02", BookUid: "f7cdc58f-2caf-4b15-9727-f89dcc629b27", CopyNumber: "C-002", Status: models.CopyStatusAvailable},
		{CopyUid: "3c9f2e55-74a3-4022-b8fa-6e9d1c708b03", BookUid: "a3b1d2c4-5e6f-4708-9a0b-1c2d3e4f5a06", CopyNumber: "C-001", Status: models.CopyStatusAvailable},
	}
	for _, copy := range copies {
		var existing models.Copy
		if err := db.Where("copy_uid = ?", copy.CopyUid).First(&existing).Error; err != nil {
			if err := db.Create(&copy).Error; err != nil {
				log.Printf("Failed to seed copy %s: %v", copy.CopyUid, err)
			}
		}
	}
	log.Println("Borrowing test data seeded")
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
