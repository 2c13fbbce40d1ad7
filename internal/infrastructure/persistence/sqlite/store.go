package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paystate"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

// Store implements domain/store.Store on a *sql.DB: one struct
// wrapping *sql.DB, one method per operation. A mutex serialises
// writers on top of SQLite's own locking.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Init(ctx context.Context) error {
	return RunMigrations(s.db)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func removedClause(opts store.GetOptions) string {
	switch opts.Removed {
	case store.RemovedOnly:
		return "removed = 1"
	case store.RemovedAny:
		return "1 = 1"
	default:
		return "removed = 0"
	}
}

// --- orders ---

func (s *Store) SaveOrder(ctx context.Context, rec store.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amountJSON, err := json.Marshal(rec.Amount)
	if err != nil {
		return err
	}
	priorityJSON, err := json.Marshal(rec.SendingPriority)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, client_order_id, state, frequency_millis, amount_json, counterparty_url, memo, sending_priority_json, created_at, first_payment_at, last_payment_at, removed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ClientOrderID, rec.State, rec.FrequencyMillis, string(amountJSON), rec.CounterpartyURL, rec.Memo, string(priorityJSON),
		rec.CreatedAt, rec.FirstPaymentAt, rec.LastPaymentAt, boolToInt(rec.Removed))
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.ErrDuplicateID
		}
		return err
	}
	return nil
}

func scanOrder(row *sql.Row) (*store.OrderRecord, error) {
	var rec store.OrderRecord
	var amountJSON, priorityJSON string
	var removed int
	if err := row.Scan(&rec.ID, &rec.ClientOrderID, &rec.State, &rec.FrequencyMillis, &amountJSON, &rec.CounterpartyURL, &rec.Memo, &priorityJSON,
		&rec.CreatedAt, &rec.FirstPaymentAt, &rec.LastPaymentAt, &removed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(amountJSON), &rec.Amount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(priorityJSON), &rec.SendingPriority); err != nil {
		return nil, err
	}
	rec.Removed = removed == 1
	return &rec, nil
}

func (s *Store) GetOrder(ctx context.Context, id string, opts store.GetOptions) (*store.OrderRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, client_order_id, state, frequency_millis, amount_json, counterparty_url, memo, sending_priority_json, created_at, first_payment_at, last_payment_at, removed
		 FROM orders WHERE id = ? AND %s`, removedClause(opts))
	row := s.db.QueryRowContext(ctx, query, id)
	rec, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_order_id, state, frequency_millis, amount_json, counterparty_url, memo, sending_priority_json, created_at, first_payment_at, last_payment_at, removed
		 FROM orders WHERE id = ?`, id)
	rec, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return corerr.ErrNotFound
		}
		return err
	}

	if err := applyOrderPatch(rec, patch); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE orders SET state = ?, last_payment_at = ?, removed = ? WHERE id = ?`,
		rec.State, rec.LastPaymentAt, boolToInt(rec.Removed), id)
	return err
}

func applyOrderPatch(rec *store.OrderRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldState:
			sv, ok := v.(string)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.State = sv
		case store.FieldLastPaymentAt:
			tp, ok := v.(store.TimePtrValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.LastPaymentAt = tp.T
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

// --- outgoing payments ---

func (s *Store) SaveOutgoingPayment(ctx context.Context, rec store.OutgoingPaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amountJSON, err := json.Marshal(rec.Amount)
	if err != nil {
		return err
	}
	priorityJSON, err := json.Marshal(rec.SendingPriority)
	if err != nil {
		return err
	}
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	var pluginUpdateJSON []byte
	if rec.PluginUpdate != nil {
		pluginUpdateJSON, err = json.Marshal(rec.PluginUpdate)
		if err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outgoing_payments (id, order_id, client_order_id, counterparty_url, memo, sending_priority_json, amount_json, created_at, execute_at, state_json, plugin_update_json, removed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrderID, rec.ClientOrderID, rec.CounterpartyURL, rec.Memo, string(priorityJSON), string(amountJSON),
		rec.CreatedAt, rec.ExecuteAt, string(stateJSON), nullableString(pluginUpdateJSON), boolToInt(rec.Removed))
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.ErrDuplicateID
		}
		return err
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func scanOutgoing(row *sql.Row) (*store.OutgoingPaymentRecord, error) {
	var rec store.OutgoingPaymentRecord
	var priorityJSON, amountJSON, stateJSON string
	var pluginUpdateJSON sql.NullString
	var removed int
	if err := row.Scan(&rec.ID, &rec.OrderID, &rec.ClientOrderID, &rec.CounterpartyURL, &rec.Memo, &priorityJSON, &amountJSON,
		&rec.CreatedAt, &rec.ExecuteAt, &stateJSON, &pluginUpdateJSON, &removed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(priorityJSON), &rec.SendingPriority); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(amountJSON), &rec.Amount); err != nil {
		return nil, err
	}
	var state paystate.PaymentState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, err
	}
	rec.State = state
	if pluginUpdateJSON.Valid {
		if err := json.Unmarshal([]byte(pluginUpdateJSON.String), &rec.PluginUpdate); err != nil {
			return nil, err
		}
	}
	rec.Removed = removed == 1
	return &rec, nil
}

func (s *Store) GetOutgoingPayment(ctx context.Context, id string, opts store.GetOptions) (*store.OutgoingPaymentRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, order_id, client_order_id, counterparty_url, memo, sending_priority_json, amount_json, created_at, execute_at, state_json, plugin_update_json, removed
		 FROM outgoing_payments WHERE id = ? AND %s`, removedClause(opts))
	row := s.db.QueryRowContext(ctx, query, id)
	rec, err := scanOutgoing(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpdateOutgoingPayment(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, client_order_id, counterparty_url, memo, sending_priority_json, amount_json, created_at, execute_at, state_json, plugin_update_json, removed
		 FROM outgoing_payments WHERE id = ?`, id)
	rec, err := scanOutgoing(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return corerr.ErrNotFound
		}
		return err
	}

	if err := applyOutgoingPatch(rec, patch); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	var pluginUpdateJSON []byte
	if rec.PluginUpdate != nil {
		pluginUpdateJSON, err = json.Marshal(rec.PluginUpdate)
		if err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE outgoing_payments SET execute_at = ?, state_json = ?, plugin_update_json = ?, removed = ? WHERE id = ?`,
		rec.ExecuteAt, string(stateJSON), nullableString(pluginUpdateJSON), boolToInt(rec.Removed), id)
	return err
}

func applyOutgoingPatch(rec *store.OutgoingPaymentRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldState:
			st, ok := v.(store.StateValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.State = st.S
		case store.FieldExecuteAt:
			t, ok := v.(store.TimeValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.ExecuteAt = t.T
		case store.FieldPluginUpdate:
			m, ok := v.(store.MapValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.PluginUpdate = m.V
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

func (s *Store) GetOutgoingPayments(ctx context.Context, filter map[string]any, opts store.GetOptions) ([]store.OutgoingPaymentRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, order_id, client_order_id, counterparty_url, memo, sending_priority_json, amount_json, created_at, execute_at, state_json, plugin_update_json, removed
		 FROM outgoing_payments WHERE %s`, removedClause(opts))
	args := []any{}
	if v, ok := filter["orderId"]; ok {
		query += " AND order_id = ?"
		args = append(args, v)
	}
	if v, ok := filter["clientOrderId"]; ok {
		query += " AND client_order_id = ?"
		args = append(args, v)
	}
	if v, ok := filter["id"]; ok {
		query += " AND id = ?"
		args = append(args, v)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.OutgoingPaymentRecord
	for rows.Next() {
		var rec store.OutgoingPaymentRecord
		var priorityJSON, amountJSON, stateJSON string
		var pluginUpdateJSON sql.NullString
		var removed int
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.ClientOrderID, &rec.CounterpartyURL, &rec.Memo, &priorityJSON, &amountJSON,
			&rec.CreatedAt, &rec.ExecuteAt, &stateJSON, &pluginUpdateJSON, &removed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(priorityJSON), &rec.SendingPriority); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(amountJSON), &rec.Amount); err != nil {
			return nil, err
		}
		var state paystate.PaymentState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, err
		}
		rec.State = state
		if pluginUpdateJSON.Valid {
			if err := json.Unmarshal([]byte(pluginUpdateJSON.String), &rec.PluginUpdate); err != nil {
				return nil, err
			}
		}
		rec.Removed = removed == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- incoming payments ---

func (s *Store) SaveIncomingPayment(ctx context.Context, rec store.IncomingPaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var amountJSON []byte
	var err error
	if rec.Amount != nil {
		amountJSON, err = json.Marshal(rec.Amount)
		if err != nil {
			return err
		}
	}
	expectedJSON, err := json.Marshal(rec.ExpectedAmount)
	if err != nil {
		return err
	}
	receivedJSON, err := json.Marshal(rec.ReceivedByPlugins)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO incoming_payments (id, client_order_id, memo, amount_json, expected_amount_json, internal_state, received_by_plugins_json, created_at, removed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ClientOrderID, rec.Memo, nullableString(amountJSON), string(expectedJSON), rec.InternalState, string(receivedJSON),
		rec.CreatedAt, boolToInt(rec.Removed))
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.ErrDuplicateID
		}
		return err
	}
	return nil
}

func scanIncoming(row *sql.Row) (*store.IncomingPaymentRecord, error) {
	var rec store.IncomingPaymentRecord
	var amountJSON sql.NullString
	var expectedJSON, receivedJSON string
	var removed int
	if err := row.Scan(&rec.ID, &rec.ClientOrderID, &rec.Memo, &amountJSON, &expectedJSON, &rec.InternalState, &receivedJSON,
		&rec.CreatedAt, &removed); err != nil {
		return nil, err
	}
	if amountJSON.Valid {
		if err := json.Unmarshal([]byte(amountJSON.String), &rec.Amount); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(expectedJSON), &rec.ExpectedAmount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(receivedJSON), &rec.ReceivedByPlugins); err != nil {
		return nil, err
	}
	rec.Removed = removed == 1
	return &rec, nil
}

func (s *Store) GetIncomingPayment(ctx context.Context, id string, opts store.GetOptions) (*store.IncomingPaymentRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, client_order_id, memo, amount_json, expected_amount_json, internal_state, received_by_plugins_json, created_at, removed
		 FROM incoming_payments WHERE id = ? AND %s`, removedClause(opts))
	row := s.db.QueryRowContext(ctx, query, id)
	rec, err := scanIncoming(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpdateIncomingPayment(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_order_id, memo, amount_json, expected_amount_json, internal_state, received_by_plugins_json, created_at, removed
		 FROM incoming_payments WHERE id = ?`, id)
	rec, err := scanIncoming(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return corerr.ErrNotFound
		}
		return err
	}

	if err := applyIncomingPatch(rec, patch); err != nil {
		return err
	}

	var amountJSON []byte
	if rec.Amount != nil {
		amountJSON, err = json.Marshal(rec.Amount)
		if err != nil {
			return err
		}
	}
	receivedJSON, err := json.Marshal(rec.ReceivedByPlugins)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE incoming_payments SET amount_json = ?, internal_state = ?, received_by_plugins_json = ?, removed = ? WHERE id = ?`,
		nullableString(amountJSON), rec.InternalState, string(receivedJSON), boolToInt(rec.Removed), id)
	return err
}

func applyIncomingPatch(rec *store.IncomingPaymentRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldInternalState:
			sv, ok := v.(string)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.InternalState = sv
		case store.FieldAmount:
			a, ok := v.(store.AmountValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			amt := a.A
			rec.Amount = &amt
		case store.FieldReceivedByPlugins:
			rbp, ok := v.(store.ReceivedByPluginsValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.ReceivedByPlugins = rbp.V
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

func (s *Store) GetIncomingPayments(ctx context.Context, filter map[string]any, opts store.GetOptions) ([]store.IncomingPaymentRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, client_order_id, memo, amount_json, expected_amount_json, internal_state, received_by_plugins_json, created_at, removed
		 FROM incoming_payments WHERE %s`, removedClause(opts))
	args := []any{}
	if v, ok := filter["clientOrderId"]; ok {
		query += " AND client_order_id = ?"
		args = append(args, v)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.IncomingPaymentRecord
	for rows.Next() {
		var rec store.IncomingPaymentRecord
		var amountJSON sql.NullString
		var expectedJSON, receivedJSON string
		var removed int
		if err := rows.Scan(&rec.ID, &rec.ClientOrderID, &rec.Memo, &amountJSON, &expectedJSON, &rec.InternalState, &receivedJSON,
			&rec.CreatedAt, &removed); err != nil {
			return nil, err
		}
		if amountJSON.Valid {
			if err := json.Unmarshal([]byte(amountJSON.String), &rec.Amount); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal([]byte(expectedJSON), &rec.ExpectedAmount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(receivedJSON), &rec.ReceivedByPlugins); err != nil {
			return nil, err
		}
		rec.Removed = removed == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
