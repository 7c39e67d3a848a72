package main

import "testing"

func TestImageBaseURL(t *testing.T) {
	tests := []struct {
		name       string
		explicit   string
		bucket     string
		listenAddr string
		useTLS     bool
		expected   string
	}{
		{
			name:       "images are served by this server by default",
			listenAddr: "127.0.0.1:8000",
			expected:   "http://127.0.0.1:8000/images/",
		},
		{
			name:       "TLS servers link with https",
			listenAddr: "wlf.example.com:443",
			useTLS:     true,
			expected:   "https://wlf.example.com:443/images/",
		},
		{
			name:       "listen addresses without a host link to localhost",
			listenAddr: ":8000",
			expected:   "http://localhost:8000/images/",
		},
		{
			name:       "buckets link to the public storage URL",
			bucket:     "wlf-guide",
			listenAddr: "127.0.0.1:8000",
			expected:   "https://storage.googleapis.com/wlf-guide/Images/",
		},
		{
			name:       "an explicit base URL wins and gains a trailing slash",
			explicit:   "https://cdn.example.com/tlou2",
			bucket:     "wlf-guide",
			listenAddr: "127.0.0.1:8000",
			expected:   "https://cdn.example.com/tlou2/",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual, err := imageBaseURL(test.explicit, test.bucket, test.listenAddr, test.useTLS)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if actual != test.expected {
				t.Errorf("expected %q, got %q", test.expected, actual)
			}
		})
	}
}

func TestCreateURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		paths    []string
		expected string
	}{
		{
			name:     "if no paths are provided, the base URL is used",
			baseURL:  "http://localhost",
			paths:    nil,
			expected: "http://localhost",
		},
		{
			name:     "spaces are URL path encoded",
			baseURL:  "http://localhost",
			paths:    []string{"", "file 1.txt"},
			expected: "http://localhost/file%201.txt",
		},
		{
			name:     "trailing empty segments keep the trailing slash",
			baseURL:  "http://localhost",
			paths:    []string{"", "images", ""},
			expected: "http://localhost/images/",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual, err := createURL(test.baseURL, test.paths...)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if actual != test.expected {
				t.Errorf("expected %q, got %q", test.expected, actual)
			}
		})
	}
}

func TestCreateURLError(t *testing.T) {
	actual, err := createURL("://", "a", "b", "c.txt")
	if err == nil {
		t.Errorf("expected error, got nil, %q", actual)
	}
}
