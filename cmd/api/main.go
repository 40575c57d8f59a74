package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hazemnasser/tank-orders/internal/config"
	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/reservation"
	"github.com/hazemnasser/tank-orders/internal/store"
	"github.com/hazemnasser/tank-orders/internal/workflow"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "tank-orders-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	log.Info().Msg("connected to database")

	metrics.Register()

	engine := workflow.NewEngine(db, log.Logger, cfg.Reservation.DefaultTTL)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /customers", handleCreateCustomer(db))
	mux.HandleFunc("POST /stores", handleCreateStore(db))
	mux.HandleFunc("POST /store-assignments", handleCreateAssignment(db))
	mux.HandleFunc("POST /inventories", handleCreateInventory(db))

	mux.HandleFunc("POST /orders", handleCreateOrder(db))
	mux.HandleFunc("GET /orders", handleListOrders(db))
	mux.HandleFunc("GET /orders/{id}", handleGetOrder(db))
	mux.HandleFunc("GET /orders/{id}/history", handleOrderHistory(db))
	mux.HandleFunc("GET /orders/{id}/validate-transition", handleValidateTransition(engine))

	mux.HandleFunc("POST /orders/{id}/confirm", handleConfirm(engine))
	mux.HandleFunc("POST /orders/{id}/start-delivery", handleStartDelivery(engine))
	mux.HandleFunc("POST /orders/{id}/complete-delivery", handleCompleteDelivery(engine))
	mux.HandleFunc("POST /orders/{id}/fail-delivery", handleFailDelivery(engine))
	mux.HandleFunc("POST /orders/{id}/cancel", handleCancel(engine))
	mux.HandleFunc("POST /orders/{id}/fulfill", handleFulfillOrder(engine))
	mux.HandleFunc("POST /orders/{id}/restore-reservations", handleRestoreReservations(engine))

	mux.HandleFunc("POST /availability", handleCheckAvailability(db))
	mux.HandleFunc("GET /reservations/metrics", handleReservationMetrics(db))

	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Info().Str("port", cfg.Server.Port).Msg("server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func handleCreateCustomer(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		customer, err := store.CreateCustomer(r.Context(), db, req.Email, req.Name)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, customer)
	}
}

func handleCreateStore(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := store.CreateStore(r.Context(), db, req.Name)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, s)
	}
}

func handleCreateAssignment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StoreID int64 `json:"store_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		assignment, err := store.CreateStoreAssignment(r.Context(), db, req.StoreID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, assignment)
	}
}

func handleCreateInventory(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StoreID  int64          `json:"store_id"`
			Item     models.ItemRef `json:"item"`
			Quantity int            `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		inv, err := store.CreateInventory(r.Context(), db, req.StoreID, req.Item, req.Quantity)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, inv)
	}
}

func handleCreateOrder(db *sql.DB) http.HandlerFunc {
	type itemPayload struct {
		Item      models.ItemRef `json:"item"`
		Quantity  int            `json:"quantity"`
		UnitPrice string         `json:"unit_price"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CustomerID    int64         `json:"customer_id"`
			Priority      int           `json:"priority"`
			PaymentMethod string        `json:"payment_method"`
			Items         []itemPayload `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		items := make([]store.OrderItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			price, err := decimal.NewFromString(item.UnitPrice)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid unit price")
				return
			}
			items = append(items, store.OrderItemRequest{
				Item:      item.Item,
				Quantity:  item.Quantity,
				UnitPrice: price,
			})
		}

		order, err := store.CreateOrder(r.Context(), db, store.CreateOrderRequest{
			CustomerID:    req.CustomerID,
			Priority:      req.Priority,
			PaymentMethod: req.PaymentMethod,
			Items:         items,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, order)
	}
}

func handleListOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "customer_id is required")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		page, err := store.ListOrdersCursor(r.Context(), db, customerID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
	}
}

func handleGetOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		order, err := store.GetOrder(r.Context(), db, id)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, order)
	}
}

func handleOrderHistory(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		entries, err := store.ListStatusHistory(r.Context(), db, id)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, entries)
	}
}

func handleValidateTransition(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
		to := models.OrderStatus(r.URL.Query().Get("to"))

		check, err := engine.ValidateTransition(r.Context(), id, to, actorID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, check)
	}
}

func handleConfirm(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			StoreAssignmentID    int64      `json:"store_assignment_id"`
			ActorID              int64      `json:"actor_id"`
			Notes                string     `json:"notes"`
			ReservationExpiresAt *time.Time `json:"reservation_expires_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.Confirm(r.Context(), workflow.ConfirmRequest{
			OrderID:              id,
			StoreAssignmentID:    req.StoreAssignmentID,
			ActorID:              req.ActorID,
			Notes:                req.Notes,
			ReservationExpiresAt: req.ReservationExpiresAt,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleStartDelivery(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			DeliveryActorID int64  `json:"delivery_actor_id"`
			Instructions    string `json:"instructions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.StartDelivery(r.Context(), workflow.StartDeliveryRequest{
			OrderID:         id,
			DeliveryActorID: req.DeliveryActorID,
			Instructions:    req.Instructions,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleCompleteDelivery(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			DeliveryActorID int64                    `json:"delivery_actor_id"`
			ActualItems     []reservation.ActualItem `json:"actual_items"`
			Signature       string                   `json:"signature"`
			Notes           string                   `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.CompleteDelivery(r.Context(), workflow.CompleteDeliveryRequest{
			OrderID:         id,
			DeliveryActorID: req.DeliveryActorID,
			ActualItems:     req.ActualItems,
			Signature:       req.Signature,
			Notes:           req.Notes,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleFailDelivery(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			Reason     string `json:"reason"`
			ActorID    int64  `json:"actor_id"`
			Reschedule bool   `json:"reschedule"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.FailDelivery(r.Context(), workflow.FailDeliveryRequest{
			OrderID:    id,
			Reason:     req.Reason,
			ActorID:    req.ActorID,
			Reschedule: req.Reschedule,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleCancel(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			Reason  string `json:"reason"`
			ActorID int64  `json:"actor_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.Cancel(r.Context(), workflow.CancelRequest{
			OrderID: id,
			Reason:  req.Reason,
			ActorID: req.ActorID,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleFulfillOrder(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			ActorID int64  `json:"actor_id"`
			Notes   string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.FulfillOrder(r.Context(), workflow.FulfillOrderRequest{
			OrderID: id,
			ActorID: req.ActorID,
			Notes:   req.Notes,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleRestoreReservations(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid order ID")
			return
		}

		var req struct {
			Reason  string `json:"reason"`
			ActorID int64  `json:"actor_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := engine.RestoreReservations(r.Context(), id, req.Reason, req.ActorID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleCheckAvailability(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StoreID int64                     `json:"store_id"`
			Items   []reservation.ItemRequest `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		results, err := reservation.CheckAvailability(r.Context(), db, req.StoreID, req.Items)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, results)
	}
}

func handleReservationMetrics(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := reservation.MetricsFilter{}

		if v := r.URL.Query().Get("store_id"); v != "" {
			storeID, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid store_id")
				return
			}
			filter.StoreID = &storeID
		}
		if v := r.URL.Query().Get("from"); v != "" {
			from, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid from timestamp")
				return
			}
			filter.From = &from
		}
		if v := r.URL.Query().Get("to"); v != "" {
			to, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid to timestamp")
				return
			}
			filter.To = &to
		}

		report, err := reservation.Metrics(r.Context(), db, filter)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

// respondDomainError maps the core error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var transitionErr *workflow.InvalidTransitionError
	var inventoryErr *reservation.InsufficientInventoryError

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &inventoryErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrStoreNotFound),
		errors.Is(err, database.ErrAssignmentNotFound),
		errors.Is(err, database.ErrInventoryNotFound),
		errors.Is(err, database.ErrReservationNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("internal error")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
