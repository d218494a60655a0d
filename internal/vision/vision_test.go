package vision

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

func TestAddProduct(t *testing.T) {
	var gotImages [][]byte
	var gotFields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/add_product" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		for _, fh := range r.MultipartForm.File["images"] {
			f, _ := fh.Open()
			b, _ := io.ReadAll(f)
			f.Close()
			gotImages = append(gotImages, b)
		}
		gotFields = map[string]string{
			"name":        r.FormValue("name"),
			"price":       r.FormValue("price"),
			"description": r.FormValue("description"),
			"seller":      r.FormValue("seller"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"added":3,"duplicates":1,"errors":["img4: duplicate"]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	images := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	res, err := c.AddProduct(context.Background(), images, models.ProductDetails{Name: "Hat", Price: 12.5, Description: "wool"}, "user_1")
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if res.Added != 3 || res.Duplicates != 1 || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(gotImages) != 4 || string(gotImages[3]) != "d" {
		t.Errorf("server received %d images", len(gotImages))
	}
	want := map[string]string{"name": "Hat", "price": "12.5", "description": "wool", "seller": "user_1"}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}
}

func TestAddProduct_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).AddProduct(context.Background(), [][]byte{[]byte("a")}, models.ProductDetails{Name: "Hat", Price: 1}, "u")
	if !errors.Is(err, ErrServer) {
		t.Errorf("err = %v, want ErrServer", err)
	}
}

func TestAddProduct_NoImages(t *testing.T) {
	_, err := NewClient().AddProduct(context.Background(), nil, models.ProductDetails{}, "u")
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("err = %v, want ErrNoImages", err)
	}
}

func TestAddProduct_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	if _, err := c.AddProduct(context.Background(), [][]byte{[]byte("a")}, models.ProductDetails{Name: "Hat", Price: 1}, "u"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
	status = http.StatusServiceUnavailable
	if err := c.Health(context.Background()); !errors.Is(err, ErrServer) {
		t.Errorf("err = %v, want ErrServer", err)
	}
}
