package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"library-system/pkg/borrowing"
	"library-system/pkg/models"
	"library-system/pkg/notices"
	"library-system/pkg/policy"
)

func setupTest(t *testing.T) *gorm.DB {
	gin.SetMode(gin.TestMode)
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect test database: %v", err)
	}
	testDB.AutoMigrate(&models.Copy{}, &models.BorrowingTransaction{})

	db = testDB
	pol = policy.Default()
	svc = borrowing.NewService(testDB, pol, nil, nil)
	scheduler = notices.NewScheduler()
	return testDB
}

func createTestCopy(t *testing.T, testDB *gorm.DB, uid string) {
	err := testDB.Create(&models.Copy{
		CopyUid: uid,
		BookUid: "test-book-uid",
		Status:  models.CopyStatusAvailable,
	}).Error
	if err != nil {
		t.Fatalf("failed to create copy: %v", err)
	}
}

func createOverdueLoan(t *testing.T, testDB *gorm.DB, uid, copyUid, memberUid string, daysOverdue int) {
	now := time.Now()
	err := testDB.Create(&models.BorrowingTransaction{
		TransactionUid: uid,
		CopyUid:        copyUid,
		MemberUid:      memberUid,
		BorrowDate:     now.AddDate(0, 0, -daysOverdue-14),
		DueDate:        now.AddDate(0, 0, -daysOverdue),
		Status:         models.TransactionStatusActive,
	}).Error
	if err != nil {
		t.Fatalf("failed to create loan: %v", err)
	}
	testDB.Model(&models.Copy{}).Where("copy_uid = ?", copyUid).
		Update("status", models.CopyStatusBorrowed)
}

func postJSON(t *testing.T, handler gin.HandlerFunc, url string, body interface{}, params gin.Params) *httptest.ResponseRecorder {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", url, bytes.NewBuffer(jsonBody))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	handler(c)
	return w
}

func getRequest(handler gin.HandlerFunc, url string, params gin.Params) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", url, nil)
	c.Params = params
	handler(c)
	return w
}

func TestBorrowBookHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")

	w := postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
		"copyUid":   "copy-1",
		"memberUid": "member-1",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotEmpty(t, response["transactionUid"])
	assert.Equal(t, models.TransactionStatusActive, response["status"])

	var copy models.Copy
	testDB.Where("copy_uid = ?", "copy-1").First(&copy)
	assert.Equal(t, models.CopyStatusBorrowed, copy.Status)

	// Overdue notices got scheduled for the new loan.
	assert.Equal(t, len(pol.NotificationOffsets), scheduler.Size())
}

func TestBorrowBookHandlerMissingFields(t *testing.T) {
	setupTest(t)

	w := postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
		"copyUid": "copy-1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBorrowBookHandlerConflict(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")

	w := postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
		"copyUid":   "copy-1",
		"memberUid": "member-1",
	}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
		"copyUid":   "copy-1",
		"memberUid": "member-2",
	}, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, string(borrowing.KindConflict), response["kind"])
}

func TestBorrowBookHandlerLimitExceeded(t *testing.T) {
	testDB := setupTest(t)
	for _, uid := range []string{"copy-1", "copy-2", "copy-3", "copy-4"} {
		createTestCopy(t, testDB, uid)
	}
	for _, uid := range []string{"copy-1", "copy-2", "copy-3"} {
		w := postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
			"copyUid":   uid,
			"memberUid": "member-1",
		}, nil)
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	w := postJSON(t, borrowBook, "/api/v1/loans", map[string]interface{}{
		"copyUid":   "copy-4",
		"memberUid": "member-1",
	}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReturnBookHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	loan, err := svc.Borrow("copy-1", "member-1", 0)
	assert.NoError(t, err)

	params := gin.Params{gin.Param{Key: "transactionUid", Value: loan.TransactionUid}}
	w := postJSON(t, returnBook, "/api/v1/loans/"+loan.TransactionUid+"/return",
		map[string]interface{}{"notes": "front desk"}, params)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, models.TransactionStatusReturned, response["status"])
	assert.NotNil(t, response["fee"])

	var stored models.BorrowingTransaction
	testDB.Where("transaction_uid = ?", loan.TransactionUid).First(&stored)
	assert.Equal(t, models.TransactionStatusReturned, stored.Status)

	// Second return is rejected and changes nothing.
	w = postJSON(t, returnBook, "/api/v1/loans/"+loan.TransactionUid+"/return",
		map[string]interface{}{}, params)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReturnBookHandlerNotFound(t *testing.T) {
	setupTest(t)

	params := gin.Params{gin.Param{Key: "transactionUid", Value: "no-such-uid"}}
	w := postJSON(t, returnBook, "/api/v1/loans/no-such-uid/return",
		map[string]interface{}{}, params)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFeeHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	createOverdueLoan(t, testDB, "tx-1", "copy-1", "member-1", 10)

	params := gin.Params{gin.Param{Key: "transactionUid", Value: "tx-1"}}
	w := getRequest(getFee, "/api/v1/loans/tx-1/fee", params)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(10), response["daysOverdue"])
	assert.Equal(t, 4.0, response["feeAmount"])
	assert.Equal(t, false, response["withinGrace"])
	assert.Equal(t, models.TransactionStatusOverdue, response["status"])
}

func TestGetFeeHandlerBadAsOf(t *testing.T) {
	setupTest(t)

	params := gin.Params{gin.Param{Key: "transactionUid", Value: "tx-1"}}
	w := getRequest(getFee, "/api/v1/loans/tx-1/fee?asOf=tomorrow", params)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOverdueHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	createTestCopy(t, testDB, "copy-2")
	createOverdueLoan(t, testDB, "tx-1", "copy-1", "member-1", 5)

	_, err := svc.Borrow("copy-2", "member-2", 0)
	assert.NoError(t, err)

	w := getRequest(listOverdue, "/api/v1/loans/overdue", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	items := response["items"].([]interface{})
	assert.Equal(t, 1, len(items))
	first := items[0].(map[string]interface{})
	assert.Equal(t, "tx-1", first["transactionUid"])
	assert.Equal(t, models.TransactionStatusOverdue, first["status"])
}

func TestSweepOverdueHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	createOverdueLoan(t, testDB, "tx-1", "copy-1", "member-1", 5)

	w := postJSON(t, sweepOverdue, "/api/v1/loans/overdue/sweep", map[string]interface{}{}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	// Offsets 1 and 3 have passed for a loan 5 days overdue.
	assert.Equal(t, float64(2), response["enqueued"])
}

func TestGetMemberLoansHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	_, err := svc.Borrow("copy-1", "member-1", 0)
	assert.NoError(t, err)

	params := gin.Params{gin.Param{Key: "memberUid", Value: "member-1"}}
	w := getRequest(getMemberLoans, "/api/v1/members/member-1/loans", params)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, 1, len(response))
	assert.Equal(t, "copy-1", response[0]["copyUid"])
}

func TestGetMemberRiskHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	createOverdueLoan(t, testDB, "tx-1", "copy-1", "member-1", 10)

	params := gin.Params{gin.Param{Key: "memberUid", Value: "member-1"}}
	w := getRequest(getMemberRisk, "/api/v1/members/member-1/risk", params)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(100), response["overdueRate"])
	assert.Equal(t, float64(1), response["currentOverdueCount"])
	assert.NotEmpty(t, response["riskLevel"])
}

func TestRegisterCopyHandler(t *testing.T) {
	testDB := setupTest(t)

	w := postJSON(t, registerCopy, "/api/v1/copies", map[string]interface{}{
		"bookUid":    "book-1",
		"copyNumber": "C-001",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotEmpty(t, response["copyUid"])
	assert.Equal(t, models.CopyStatusAvailable, response["status"])

	var count int64
	testDB.Model(&models.Copy{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRegisterCopyHandlerDuplicate(t *testing.T) {
	setupTest(t)

	body := map[string]interface{}{"copyUid": "copy-1", "bookUid": "book-1"}
	w := postJSON(t, registerCopy, "/api/v1/copies", body, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, registerCopy, "/api/v1/copies", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetCopyHandler(t *testing.T) {
	testDB := setupTest(t)
	createTestCopy(t, testDB, "copy-1")
	_, err := svc.Borrow("copy-1", "member-1", 0)
	assert.NoError(t, err)

	params := gin.Params{gin.Param{Key: "copyUid", Value: "copy-1"}}
	w := getRequest(getCopy, "/api/v1/copies/copy-1", params)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, models.CopyStatusBorrowed, response["status"])
	assert.NotNil(t, response["activeLoan"])
}

func TestGetCopyHandlerNotFound(t *testing.T) {
	setupTest(t)

	params := gin.Params{gin.Param{Key: "copyUid", Value: "no-such-copy"}}
	w := getRequest(getCopy, "/api/v1/copies/no-such-copy", params)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	setupTest(t)

	w := getRequest(healthCheck, "/manage/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "UP", response["status"])
}
