package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/memohai/wabiz/internal/logger"
)

const scrollPageSize = 256

// QdrantIndex stores message records as points in a qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewQdrantIndex connects to qdrant and creates the collection when missing.
func NewQdrantIndex(log *slog.Logger, baseURL, apiKey, collection string, dimension int, timeout time.Duration) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = "conversations"
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant index: dimension must be positive")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, err
	}

	index := &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
		timeout:    timeoutOrDefault(timeout),
		logger:     logger.OrDiscard(log).With(slog.String("store", "qdrant")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), index.timeout)
	defer cancel()
	if err := index.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return index, nil
}

// Close releases the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

func (s *QdrantIndex) Upsert(ctx context.Context, record Record, vector []float32) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(vector), s.dimension)
	}
	payload, err := qdrant.TryValueMap(recordPayload(record))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(record.ID),
			Vectors: qdrant.NewVectorsDense(vector),
			Payload: payload,
		}},
	})
	return err
}

func (s *QdrantIndex) ByContact(ctx context.Context, contactID string) ([]Record, error) {
	return s.scrollAll(ctx, buildQdrantFilter(map[string]any{"contact_id": contactID}))
}

func (s *QdrantIndex) Similar(ctx context.Context, vector []float32, contactID string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var filter *qdrant.Filter
	if contactID != "" {
		filter = buildQdrantFilter(map[string]any{"contact_id": contactID})
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(results))
	for _, scored := range results {
		record := recordFromPayload(pointIDToString(scored.GetId()), valueMapToInterface(scored.GetPayload()))
		matches = append(matches, Match{
			Record:     record,
			Similarity: clampSimilarity(float64(scored.GetScore())),
		})
	}
	return matches, nil
}

func (s *QdrantIndex) ContactIDs(ctx context.Context) ([]string, error) {
	records, err := s.scrollAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	ids := make([]string, 0)
	for _, record := range records {
		if _, ok := seen[record.ContactID]; ok || record.ContactID == "" {
			continue
		}
		seen[record.ContactID] = struct{}{}
		ids = append(ids, record.ContactID)
	}
	return ids, nil
}

func (s *QdrantIndex) DeleteContact(ctx context.Context, contactID string) (int, error) {
	filter := buildQdrantFilter(map[string]any{"contact_id": contactID})
	if filter == nil {
		return 0, fmt.Errorf("delete requires a contact id")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil //nolint:gosec // point counts fit in int
}

func (s *QdrantIndex) scrollAll(ctx context.Context, filter *qdrant.Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var (
		records []Record
		offset  *qdrant.PointId
	)
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}
		for _, point := range points {
			records = append(records, recordFromPayload(pointIDToString(point.GetId()), valueMapToInterface(point.GetPayload())))
		}
		if next == nil || len(points) == 0 {
			return records, nil
		}
		offset = next
	}
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	s.logger.Info("creating collection", slog.String("collection", s.collection), slog.Int("dimension", s.dimension))
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension), //nolint:gosec // validated positive
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func recordPayload(record Record) map[string]any {
	payload := map[string]any{
		"contact_id": record.ContactID,
		"text":       record.Text,
		"sender":     record.Sender,
		"receiver":   record.Receiver,
		"timestamp":  record.Timestamp,
		"datetime":   record.Datetime,
		"seq":        record.Seq,
	}
	if record.Status != "" {
		payload["status"] = record.Status
	}
	return payload
}

func recordFromPayload(id string, payload map[string]any) Record {
	return Record{
		ID:        id,
		ContactID: asString(payload["contact_id"]),
		Text:      asString(payload["text"]),
		Sender:    asString(payload["sender"]),
		Receiver:  asString(payload["receiver"]),
		Timestamp: asInt64(payload["timestamp"]),
		Datetime:  asString(payload["datetime"]),
		Status:    asString(payload["status"]),
		Seq:       asInt64(payload["seq"]),
	}
}

func clampSimilarity(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func asInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case string:
		n, _ := strconv.ParseInt(typed, 10, 64)
		return n
	default:
		return 0
	}
}

func parseQdrantEndpoint(endpoint string) (string, int, bool, error) {
	if endpoint == "" {
		return "127.0.0.1", 6334, false, nil
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, false, err
	}
	host := parsed.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := 6334
	if parsed.Port() != "" {
		parsedPort, err := strconv.Atoi(parsed.Port())
		if err != nil {
			return "", 0, false, err
		}
		port = parsedPort
	}
	return host, port, parsed.Scheme == "https", nil
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 10 * time.Second
	}
	return timeout
}

func buildQdrantFilter(filters map[string]any) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		if condition := buildQdrantCondition(key, value); condition != nil {
			conditions = append(conditions, condition)
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: conditions,
	}
}

func buildQdrantCondition(key string, value any) *qdrant.Condition {
	switch typed := value.(type) {
	case string:
		if typed == "" {
			return nil
		}
		return qdrant.NewMatch(key, typed)
	case bool:
		return qdrant.NewMatchBool(key, typed)
	case int:
		return qdrant.NewMatchInt(key, int64(typed))
	case int64:
		return qdrant.NewMatchInt(key, typed)
	case map[string]any:
		rangeValue := &qdrant.Range{}
		for _, op := range []string{"gte", "gt", "lte", "lt"} {
			raw, ok := typed[op]
			if !ok {
				continue
			}
			val, ok := toFloat(raw)
			if !ok {
				continue
			}
			switch op {
			case "gte":
				rangeValue.Gte = &val
			case "gt":
				rangeValue.Gt = &val
			case "lte":
				rangeValue.Lte = &val
			case "lt":
				rangeValue.Lt = &val
			}
		}
		if rangeValue.Gte != nil || rangeValue.Gt != nil || rangeValue.Lte != nil || rangeValue.Lt != nil {
			return qdrant.NewRange(key, rangeValue)
		}
		return nil
	}
	return qdrant.NewMatch(key, fmt.Sprint(value))
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func pointIDToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return strconv.FormatUint(num, 10)
	}
	return ""
}

func valueMapToInterface(values map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(values))
	for key, value := range values {
		result[key] = valueToInterface(value)
	}
	return result
}

func valueToInterface(value *qdrant.Value) any {
	if value == nil {
		return nil
	}
	switch kind := value.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_StructValue:
		return valueMapToInterface(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, valueToInterface(item))
		}
		return items
	default:
		return nil
	}
}
