package main

import (
	"fmt"
	"io"

	"postboard/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(w io.Writer, payload any) error {
	return outputFormatter.Write(w, payload)
}

func writePlain(w io.Writer, layout string, args ...any) error {
	_, err := fmt.Fprintf(w, layout, args...)
	return err
}
