// Package importer parses student roster CSV uploads.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
)

// Expected header: roll_number,first_name,last_name,email,department,enrollment_year,current_semester
var expectedHeader = []string{"roll_number", "first_name", "last_name", "email", "department", "enrollment_year", "current_semester"}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ParsedStudent struct {
	Row     int
	Student model.Student
}

type Result struct {
	Students []ParsedStudent
	Errors   []RowError
}

// ParseStudents reads the roster and returns the rows that parsed cleanly
// alongside per-row errors. IDs and timestamps are left for the caller to
// assign at insert time.
func ParseStudents(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return Result{}, err
	}

	var result Result
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row, Message: err.Error()})
			continue
		}
		student, rowErr := parseRow(record)
		if rowErr != "" {
			result.Errors = append(result.Errors, RowError{Row: row, Message: rowErr})
			continue
		}
		result.Students = append(result.Students, ParsedStudent{Row: row, Student: student})
	}
	return result, nil
}

func checkHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("expected %d columns, got %d", len(expectedHeader), len(header))
	}
	for i, name := range expectedHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != name {
			return fmt.Errorf("expected column %q at position %d, got %q", name, i+1, header[i])
		}
	}
	return nil
}

func parseRow(record []string) (model.Student, string) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	student := model.Student{
		RollNumber: record[0],
		FirstName:  record[1],
		LastName:   record[2],
		Email:      record[3],
		Department: record[4],
	}
	if student.RollNumber == "" || student.FirstName == "" || student.LastName == "" {
		return model.Student{}, "roll_number, first_name and last_name are required"
	}
	if !strings.Contains(student.Email, "@") {
		return model.Student{}, "invalid email"
	}

	year, err := strconv.Atoi(record[5])
	if err != nil || year < 1900 || year > 2200 {
		return model.Student{}, "invalid enrollment_year"
	}
	semester, err := strconv.Atoi(record[6])
	if err != nil || semester < 1 || semester > 12 {
		return model.Student{}, "invalid current_semester"
	}
	student.EnrollmentYear = year
	student.CurrentSemester = semester
	return student, ""
}
