package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"receipt-overseer/internal/ledger"
	"receipt-overseer/internal/models"
	"receipt-overseer/internal/service"
)

// ExpenseHandler serves the shared ledger.
type ExpenseHandler struct {
	ledger *service.LedgerService
}

func NewExpenseHandler(ledger *service.LedgerService) *ExpenseHandler {
	return &ExpenseHandler{ledger: ledger}
}

type expenseRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Participants []int           `json:"participants"`
}

func (r expenseRequest) input() service.ExpenseInput {
	return service.ExpenseInput{Amount: r.Amount, Description: r.Description, Participants: r.Participants}
}

type balanceResponse struct {
	OwedByViewer   decimal.Decimal       `json:"owed_by_viewer"`
	OwedToViewer   decimal.Decimal       `json:"owed_to_viewer"`
	Net            decimal.Decimal       `json:"net"`
	Status         string                `json:"status"`
	Counterparties []ledger.Counterparty `json:"counterparties"`
}

// ListExpenses supports search, skip and limit query parameters.
func (h *ExpenseHandler) ListExpenses(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultPageLimit)
	if !ok {
		return
	}

	expenses, err := h.ledger.ListExpenses(c.Request.Context(), models.ExpenseFilter{
		Search: c.Query("search"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	expense, err := h.ledger.CreateExpense(c.Request.Context(), actorFromContext(c), req.input())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

// UpdateExpense replaces an expense; only its payer may do so.
func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	expenseID, ok := pathID(c, "expense_id")
	if !ok {
		return
	}
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	expense, err := h.ledger.UpdateExpense(c.Request.Context(), actorFromContext(c), expenseID, req.input())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	expenseID, ok := pathID(c, "expense_id")
	if !ok {
		return
	}

	if err := h.ledger.DeleteExpense(c.Request.Context(), actorFromContext(c), expenseID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "expense deleted"})
}

// GetBalance returns the caller's net position.
func (h *ExpenseHandler) GetBalance(c *gin.Context) {
	view, err := h.ledger.Balance(c.Request.Context(), actorFromContext(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	counterparties := view.Counterparties
	if counterparties == nil {
		counterparties = []ledger.Counterparty{}
	}
	c.JSON(http.StatusOK, balanceResponse{
		OwedByViewer:   view.OwedByViewer,
		OwedToViewer:   view.OwedToViewer,
		Net:            view.Net(),
		Status:         view.Status(),
		Counterparties: counterparties,
	})
}
