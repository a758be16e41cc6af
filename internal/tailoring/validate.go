package tailoring

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims user-entered fields and applies defaults.
func (r *TailoringRequest) Normalize() {
	r.JobTitle = strings.TrimSpace(r.JobTitle)
	r.JobURL = strings.TrimSpace(r.JobURL)
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.JobDescription = strings.TrimSpace(r.JobDescription)
	r.ResumeTemplate = strings.TrimSpace(r.ResumeTemplate)
	if r.OutputFormat == "" {
		r.OutputFormat = FormatDual
	}
	if r.ResumeTemplate == "" {
		r.ResumeTemplate = "professional"
	}
}

// Validate runs the local checks that must pass before any network call.
func (r TailoringRequest) Validate() error {
	if r.Resume == nil {
		return validationError("Please upload a resume")
	}
	if r.Resume.SizeBytes > MaxResumeBytes || int64(len(r.Resume.Content)) > MaxResumeBytes {
		return validationError("File size exceeds 5MB limit")
	}

	if r.GenerateCoverLetter {
		if r.JobTitle == "" || r.CompanyName == "" {
			return validationError("For cover letter generation, Job Title and Company Name are required")
		}
	} else if r.JobURL == "" && r.JobTitle == "" {
		return validationError("Please enter either a Job URL or Job Title")
	}

	if err := requestValidator.Struct(r); err != nil {
		return fromValidator(err)
	}
	return nil
}

// validateResolved checks the request after job URL extraction filled in what it could.
func (r TailoringRequest) validateResolved() error {
	if r.JobTitle == "" {
		return validationError("Job title is required. Please provide a job title or a valid job URL.")
	}
	if r.GenerateCoverLetter && r.CompanyName == "" {
		return validationError("Company Name is required for cover letter generation.")
	}
	return nil
}

func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return validationError(err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Field() {
	case "JobTitle":
		return validationError("Job title must be 100 characters or less")
	case "JobURL":
		return validationError("Job URL must be a valid URL")
	case "CompanyName":
		return validationError("Company Name is required for cover letter generation.")
	case "OutputFormat":
		return validationError("Output format must be one of pdf, word or dual")
	default:
		return validationError(fe.Error())
	}
}
