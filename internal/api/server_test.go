package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
	"tabledash/internal/service"
)

var pets = domain.Handle{Store: "shelter", Collection: "pets"}

func newTestServer(t *testing.T) (*dbclient.MemoryDriver, http.Handler) {
	t.Helper()
	drv := dbclient.NewMemoryDriver()
	drv.Seed(pets.Store, pets.Collection,
		domain.Record{{Name: "_id", Value: 1}, {Name: "age", Value: 3}, {Name: "animal", Value: "cat"}},
		domain.Record{{Name: "_id", Value: 2}, {Name: "age", Value: 5}, {Name: "animal", Value: "dog"}},
	)
	svc := service.NewTableService(drv, nil, &service.MockEmitter{}, time.Second)
	return drv, NewServer(svc, http.NotFoundHandler(), nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), rr.Body.String())
	return out
}

// openPets creates a session with shelter/pets loaded and returns its ID.
func openPets(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, "POST", "/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode(t, rr)["id"].(string)

	rr = do(t, h, "PUT", "/sessions/"+id+"/selection", `{"store":"shelter","collection":"pets"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return id
}

func TestListStoresAndCollections(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, "GET", "/stores", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"shelter"}, decode(t, rr)["stores"])

	rr = do(t, h, "GET", "/stores/shelter/collections", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"pets"}, decode(t, rr)["collections"])

	rr = do(t, h, "GET", "/stores/nope/collections", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode(t, rr)["kind"])
}

func TestEditAndSave(t *testing.T) {
	drv, h := newTestServer(t)
	id := openPets(t, h)

	rr := do(t, h, "PUT", "/sessions/"+id+"/cells", `{"row":0,"column":"age","value":4}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decode(t, rr)["dirty"])

	rr = do(t, h, "POST", "/sessions/"+id+"/rows", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, "POST", "/sessions/"+id+"/save", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, false, body["dirty"])
	ack := body["ack"].(map[string]any)
	assert.EqualValues(t, 2, ack["deleted"])
	assert.EqualValues(t, 3, ack["inserted"])

	saved := drv.Records(pets)
	require.Len(t, saved, 3)
	age, _ := saved[0].Get("age")
	assert.EqualValues(t, 4, age)
}

func TestGetAndCloseSession(t *testing.T) {
	_, h := newTestServer(t)
	id := openPets(t, h)

	rr := do(t, h, "GET", "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, id, body["id"])
	snap := body["snapshot"].(map[string]any)
	assert.Equal(t, []any{"age", "animal"}, snap["columns"])

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/sessions/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/sessions/"+id, "").Code)
}

func TestRangeErrors(t *testing.T) {
	_, h := newTestServer(t)
	id := openPets(t, h)

	rr := do(t, h, "DELETE", "/sessions/"+id+"/rows/2", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "range", decode(t, rr)["kind"])

	rr = do(t, h, "DELETE", "/sessions/"+id+"/rows/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, "PUT", "/sessions/"+id+"/cells", `{"row":0,"column":"color","value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, "PUT", "/sessions/"+id+"/cells", `{"column":"age"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, "PUT", "/sessions/"+id+"/cells", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnreachableStore(t *testing.T) {
	drv, h := newTestServer(t)
	drv.SetUnreachable(true)

	rr := do(t, h, "GET", "/stores", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "connection", decode(t, rr)["kind"])

	rr = do(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unhealthy", decode(t, rr)["status"])

	drv.SetUnreachable(false)
	rr = do(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPartialSaveReportsCounts(t *testing.T) {
	drv, h := newTestServer(t)
	id := openPets(t, h)
	drv.FailInsertAfter(1, nil)

	rr := do(t, h, "POST", "/sessions/"+id+"/save", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "partial_save", body["kind"])
	assert.EqualValues(t, 2, body["deleted"])
	assert.EqualValues(t, 1, body["inserted"])
	assert.EqualValues(t, 2, body["expected"])
}

func TestValidationRejected(t *testing.T) {
	drv, h := newTestServer(t)
	drv.Seed("shelter", "odd", domain.Record{{Name: "$weird", Value: 1}})
	id := openPets(t, h)

	rr := do(t, h, "PUT", "/sessions/"+id+"/selection", `{"store":"shelter","collection":"odd"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, "POST", "/sessions/"+id+"/save", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, 0, drv.Calls("replace_all"))
}

func TestHistogramAndCharts(t *testing.T) {
	_, h := newTestServer(t)
	id := openPets(t, h)

	rr := do(t, h, "GET", "/sessions/"+id+"/histogram?x=animal", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decode(t, rr)["total"])

	rr = do(t, h, "GET", "/sessions/"+id+"/histogram", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, "GET", "/sessions/"+id+"/histogram?x=missing", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// only "age by animal" applies: the table has no neutered column
	rr = do(t, h, "GET", "/sessions/"+id+"/charts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["charts"], 1)
}

func TestCreateCollection(t *testing.T) {
	drv, h := newTestServer(t)

	rr := do(t, h, "POST", "/stores/shelter/collections", `{"name":"adopters"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, 1, drv.Calls("create_collection"))

	rr = do(t, h, "GET", "/stores/shelter/collections", "")
	assert.Equal(t, []any{"adopters", "pets"}, decode(t, rr)["collections"])

	rr = do(t, h, "POST", "/stores/shelter/collections", `{"name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSavesWithoutJournal(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, "GET", "/saves?store=shelter", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decode(t, rr)["saves"])

	rr = do(t, h, "GET", "/saves?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestIDHeader(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, "GET", "/stores", "")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}
