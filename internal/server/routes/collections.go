package routes

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/objcache/internal/record"
	"github.com/any-hub/objcache/internal/server"
	"github.com/any-hub/objcache/pkg/cachefile"
)

// RegisterCollectionRoutes 暴露集合读写接口以及 /-/collections 诊断接口。
func RegisterCollectionRoutes(app *fiber.App, registry *server.CollectionRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/collections", func(c fiber.Ctx) error {
		cols := registry.List()
		payload := make([]collectionPayload, 0, len(cols))
		for _, col := range cols {
			item, err := encodeCollection(col)
			if err != nil {
				return err
			}
			payload = append(payload, item)
		}
		return c.JSON(fiber.Map{"collections": payload})
	})

	app.Get("/:name/items", withCollection(listItems))
	app.Get("/:name/items/:id", withCollection(getItem))
	app.Put("/:name/items", withCollection(syncItems))
	app.Post("/:name/items", withCollection(addItem))
	app.Patch("/:name/items", withCollection(updateItem))
	app.Delete("/:name/items/:id", withCollection(removeItem))
	app.Get("/:name/validity", withCollection(validity))
}

type collectionHandler func(fiber.Ctx, *server.Collection) error

func withCollection(h collectionHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		col, ok := server.CollectionFromContext(c)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "collection_not_found"})
		}
		return h(c, col)
	}
}

func listItems(c fiber.Ctx, col *server.Collection) error {
	rawStart, rawFinish := c.Query("start"), c.Query("finish")
	if rawStart == "" && rawFinish == "" {
		items, err := col.Cache.GetAll()
		if err != nil {
			return renderCacheError(c, err)
		}
		return c.JSON(nonNil(items))
	}

	start, errStart := strconv.Atoi(rawStart)
	finish, errFinish := strconv.Atoi(rawFinish)
	if errStart != nil || errFinish != nil {
		return renderError(c, fiber.StatusBadRequest, "range_invalid")
	}
	items, err := col.Cache.GetRange(start, finish)
	if err != nil {
		return renderCacheError(c, err)
	}
	return c.JSON(nonNil(items))
}

func getItem(c fiber.Ctx, col *server.Collection) error {
	item, ok, err := col.Cache.Get(c.Params("id"))
	if err != nil {
		return renderCacheError(c, err)
	}
	if !ok {
		return renderError(c, fiber.StatusNotFound, "item_not_found")
	}
	return c.JSON(item)
}

func syncItems(c fiber.Ctx, col *server.Collection) error {
	items, err := record.DecodeMany(c.Body())
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_body")
	}
	for _, item := range items {
		if err := col.Serializer.Validate(item); err != nil {
			return renderError(c, fiber.StatusBadRequest, "missing_id")
		}
	}
	if err := col.Cache.SyncAll(items, nil); err != nil {
		return renderCacheError(c, err)
	}
	size, err := col.Cache.Size()
	if err != nil {
		return renderCacheError(c, err)
	}
	return c.JSON(fiber.Map{"synced": len(items), "size": size})
}

func addItem(c fiber.Ctx, col *server.Collection) error {
	item, ok := decodeItem(c, col)
	if !ok {
		return nil
	}
	if err := col.Cache.Add(item, nil); err != nil {
		return renderCacheError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": col.Serializer.ObjectID(item)})
}

func updateItem(c fiber.Ctx, col *server.Collection) error {
	item, ok := decodeItem(c, col)
	if !ok {
		return nil
	}
	found, err := col.Cache.Update(item, nil)
	if err != nil {
		return renderCacheError(c, err)
	}
	if !found {
		return renderError(c, fiber.StatusNotFound, "item_not_found")
	}
	return c.JSON(fiber.Map{"id": col.Serializer.ObjectID(item)})
}

func removeItem(c fiber.Ctx, col *server.Collection) error {
	id := c.Params("id")
	found, err := col.Cache.Remove(record.Record{col.Serializer.IDField(): id}, nil)
	if err != nil {
		return renderCacheError(c, err)
	}
	if !found {
		return renderError(c, fiber.StatusNotFound, "item_not_found")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func validity(c fiber.Ctx, col *server.Collection) error {
	lastSync, hasSynced := col.Cache.LastSync()
	return c.JSON(validityPayload{
		Valid:     col.Cache.IsCacheValid(),
		Policies:  policyNames(col.Cache.Policies()),
		LastSync:  formatTime(lastSync),
		HasSynced: hasSynced,
	})
}

// decodeItem 解析请求体中的单条记录；失败时已写出 400 响应。
func decodeItem(c fiber.Ctx, col *server.Collection) (record.Record, bool) {
	item, err := record.DecodeOne(c.Body())
	if err != nil {
		_ = renderError(c, fiber.StatusBadRequest, "invalid_body")
		return nil, false
	}
	if err := col.Serializer.Validate(item); err != nil {
		_ = renderError(c, fiber.StatusBadRequest, "missing_id")
		return nil, false
	}
	return item, true
}

func renderCacheError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, cachefile.ErrOutOfRange):
		return renderError(c, fiber.StatusBadRequest, "range_out_of_bounds")
	case errors.Is(err, cachefile.ErrClosed):
		return renderError(c, fiber.StatusServiceUnavailable, "cache_closed")
	case errors.Is(err, cachefile.ErrCorruptSnapshot):
		return renderError(c, fiber.StatusInternalServerError, "cache_corrupt")
	default:
		return err
	}
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

type collectionPayload struct {
	Name          string   `json:"name"`
	File          string   `json:"file"`
	Mode          string   `json:"mode"`
	Size          int      `json:"size"`
	Valid         bool     `json:"valid"`
	Policies      []string `json:"policies"`
	LastSync      string   `json:"last_sync,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
	WriteFailures int64    `json:"write_failures"`
}

type validityPayload struct {
	Valid     bool     `json:"valid"`
	Policies  []string `json:"policies"`
	LastSync  string   `json:"last_sync,omitempty"`
	HasSynced bool     `json:"has_synced"`
}

func encodeCollection(col *server.Collection) (collectionPayload, error) {
	size, err := col.Cache.Size()
	if err != nil {
		return collectionPayload{}, err
	}
	lastSync, _ := col.Cache.LastSync()
	payload := collectionPayload{
		Name:          col.Config.Name,
		File:          col.FilePath,
		Mode:          col.Mode.String(),
		Size:          size,
		Valid:         col.Cache.IsCacheValid(),
		Policies:      policyNames(col.Cache.Policies()),
		LastSync:      formatTime(lastSync),
		WriteFailures: col.WriteFailures(),
	}
	if lastErr := col.Cache.LastError(); lastErr != nil {
		payload.LastError = lastErr.Error()
	}
	return payload, nil
}

func policyNames(policies []cachefile.Policy) []string {
	result := make([]string, len(policies))
	for i, p := range policies {
		result[i] = string(p)
	}
	return result
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(items []record.Record) []record.Record {
	if items == nil {
		return []record.Record{}
	}
	return items
}
