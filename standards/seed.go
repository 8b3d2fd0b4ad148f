package standards

import "time"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type reqSpec struct {
	id, section, title, description string
	criticality                     Criticality
	typ                             RequirementType
	related                         []string
	tags                            []string
}

func build(s Standard, specs ...reqSpec) Standard {
	for _, r := range specs {
		s.Requirements = append(s.Requirements, Requirement{
			ID:                  r.id,
			StandardID:          s.ID,
			Section:             r.section,
			Title:               r.title,
			Description:         r.description,
			Criticality:         r.criticality,
			Type:                r.typ,
			RelatedRequirements: r.related,
			Tags:                r.tags,
		})
	}
	return s
}

var everyone = []string{"all"}

// DefaultStandards returns the built-in catalogue. Each call returns fresh values.
func DefaultStandards() []Standard {
	return []Standard{
		build(Standard{
			ID:            "gdpr",
			Name:          "General Data Protection Regulation",
			ShortName:     "GDPR",
			Description:   "European Union regulation on the processing of personal data and the free movement of such data.",
			Version:       "2016/679",
			Category:      CategoryPrivacy,
			Authority:     "European Parliament and Council",
			EffectiveDate: date(2018, time.May, 25),
			Applicability: Applicability{OrganizationTypes: everyone, Industries: everyone, Regions: []string{"EU", "EEA"}},
		},
			reqSpec{"gdpr-art5", "Article 5", "Principles of processing", "Personal data is processed lawfully, fairly and transparently, limited to specified purposes and kept no longer than necessary.", CriticalityCritical, TypePolicy, []string{"gdpr-art30"}, []string{"lawfulness", "minimisation"}},
			reqSpec{"gdpr-art6", "Article 6", "Lawful basis for processing", "Each processing activity rests on a documented lawful basis such as consent, contract or legitimate interest.", CriticalityHigh, TypeDocumentation, []string{"gdpr-art5", "gdpr-art7"}, []string{"consent"}},
			reqSpec{"gdpr-art7", "Article 7", "Conditions for consent", "Consent is freely given, specific, informed, unambiguous and as easy to withdraw as to give.", CriticalityHigh, TypeProcedure, []string{"gdpr-art6"}, []string{"consent"}},
			reqSpec{"gdpr-art17", "Article 17", "Right to erasure", "Data subjects can have their personal data erased without undue delay when grounds apply.", CriticalityHigh, TypeProcedure, nil, []string{"data subject rights"}},
			reqSpec{"gdpr-art30", "Article 30", "Records of processing activities", "The controller maintains a written record of processing activities under its responsibility.", CriticalityMedium, TypeDocumentation, nil, []string{"records"}},
			reqSpec{"gdpr-art32", "Article 32", "Security of processing", "Appropriate technical and organisational measures, including encryption and pseudonymisation, protect personal data.", CriticalityCritical, TypeTechnical, []string{"iso27001-a8-24"}, []string{"encryption"}},
			reqSpec{"gdpr-art33", "Article 33", "Breach notification", "Personal data breaches are notified to the supervisory authority within 72 hours of awareness.", CriticalityCritical, TypeProcedure, []string{"gdpr-art32"}, []string{"incident response"}},
		),
		build(Standard{
			ID:            "hipaa",
			Name:          "Health Insurance Portability and Accountability Act",
			ShortName:     "HIPAA",
			Description:   "United States rules protecting the privacy and security of protected health information.",
			Version:       "1996 (Security Rule 2003)",
			Category:      CategoryHealthcare,
			Authority:     "U.S. Department of Health and Human Services",
			EffectiveDate: date(2003, time.April, 14),
			Applicability: Applicability{OrganizationTypes: []string{"covered entity", "business associate"}, Industries: []string{"healthcare", "insurance"}, Regions: []string{"US"}},
		},
			reqSpec{"hipaa-164-308", "164.308", "Administrative safeguards", "Risk analysis, workforce security and security awareness programs are in place for ePHI.", CriticalityHigh, TypeGovernance, []string{"hipaa-164-312"}, []string{"risk analysis"}},
			reqSpec{"hipaa-164-310", "164.310", "Physical safeguards", "Facility access, workstation use and device and media controls protect ePHI.", CriticalityMedium, TypeControl, nil, []string{"physical"}},
			reqSpec{"hipaa-164-312", "164.312", "Technical safeguards", "Access control, audit controls, integrity and transmission security protect ePHI.", CriticalityCritical, TypeTechnical, []string{"hipaa-164-308"}, []string{"access control", "encryption"}},
			reqSpec{"hipaa-164-404", "164.404", "Breach notification to individuals", "Affected individuals are notified of a breach of unsecured PHI within 60 days.", CriticalityHigh, TypeProcedure, nil, []string{"incident response"}},
		),
		build(Standard{
			ID:            "sox",
			Name:          "Sarbanes-Oxley Act",
			ShortName:     "SOX",
			Description:   "United States law setting requirements for financial reporting and internal controls of public companies.",
			Version:       "2002",
			Category:      CategoryFinancial,
			Authority:     "U.S. Securities and Exchange Commission",
			EffectiveDate: date(2002, time.July, 30),
			Applicability: Applicability{OrganizationTypes: []string{"public company"}, Industries: everyone, Regions: []string{"US"}},
		},
			reqSpec{"sox-302", "Section 302", "Corporate responsibility for financial reports", "Principal officers certify the accuracy of periodic financial reports.", CriticalityCritical, TypeGovernance, []string{"sox-404"}, []string{"certification"}},
			reqSpec{"sox-404", "Section 404", "Management assessment of internal controls", "Management assesses and reports on the effectiveness of internal control over financial reporting.", CriticalityCritical, TypeControl, []string{"sox-302"}, []string{"internal controls"}},
			reqSpec{"sox-802", "Section 802", "Record retention", "Audit work papers and relevant records are retained for at least seven years.", CriticalityHigh, TypeDocumentation, nil, []string{"retention"}},
		),
		build(Standard{
			ID:            "pci-dss",
			Name:          "Payment Card Industry Data Security Standard",
			ShortName:     "PCI DSS",
			Description:   "Security requirements for organizations that store, process or transmit cardholder data.",
			Version:       "4.0",
			Category:      CategorySecurity,
			Authority:     "PCI Security Standards Council",
			EffectiveDate: date(2024, time.March, 31),
			Applicability: Applicability{OrganizationTypes: []string{"merchant", "service provider"}, Industries: []string{"retail", "ecommerce", "financial", "hospitality"}, Regions: everyone},
		},
			reqSpec{"pci-req1", "Requirement 1", "Network security controls", "Network security controls are installed and maintained around the cardholder data environment.", CriticalityHigh, TypeTechnical, nil, []string{"network"}},
			reqSpec{"pci-req3", "Requirement 3", "Protect stored account data", "Stored account data is minimised and rendered unreadable with strong cryptography.", CriticalityCritical, TypeTechnical, []string{"pci-req4"}, []string{"encryption"}},
			reqSpec{"pci-req4", "Requirement 4", "Encrypt transmission of cardholder data", "Cardholder data is protected with strong cryptography during transmission over open networks.", CriticalityCritical, TypeTechnical, []string{"pci-req3"}, []string{"encryption"}},
			reqSpec{"pci-req12", "Requirement 12", "Information security policy", "An information security policy is established, published, maintained and disseminated.", CriticalityMedium, TypePolicy, nil, []string{"policy"}},
		),
		build(Standard{
			ID:            "iso27001",
			Name:          "ISO/IEC 27001 Information Security Management",
			ShortName:     "ISO 27001",
			Description:   "International standard for establishing, operating and improving an information security management system.",
			Version:       "2022",
			Category:      CategorySecurity,
			Authority:     "International Organization for Standardization",
			EffectiveDate: date(2022, time.October, 25),
			Applicability: Applicability{OrganizationTypes: everyone, Industries: everyone, Regions: everyone},
		},
			reqSpec{"iso27001-5-2", "Clause 5.2", "Information security policy", "Top management establishes an information security policy appropriate to the organization.", CriticalityHigh, TypePolicy, nil, []string{"policy"}},
			reqSpec{"iso27001-6-1", "Clause 6.1", "Risk assessment and treatment", "The organization defines and applies an information security risk assessment and treatment process.", CriticalityCritical, TypeProcedure, []string{"iso27001-5-2"}, []string{"risk analysis"}},
			reqSpec{"iso27001-a5-15", "Annex A 5.15", "Access control", "Rules to control physical and logical access to information are established and implemented.", CriticalityHigh, TypeControl, []string{"iso27001-a8-24"}, []string{"access control"}},
			reqSpec{"iso27001-a6-3", "Annex A 6.3", "Security awareness and training", "Personnel receive appropriate security awareness, education and training.", CriticalityMedium, TypeTraining, nil, []string{"training"}},
			reqSpec{"iso27001-a8-24", "Annex A 8.24", "Use of cryptography", "Rules for the effective use of cryptography, including key management, are defined and implemented.", CriticalityHigh, TypeTechnical, nil, []string{"encryption"}},
		),
		build(Standard{
			ID:            "soc2",
			Name:          "SOC 2 Trust Services Criteria",
			ShortName:     "SOC 2",
			Description:   "AICPA attestation framework covering security, availability, processing integrity, confidentiality and privacy of service organizations.",
			Version:       "2017 (revised 2022)",
			Category:      CategorySecurity,
			Authority:     "American Institute of Certified Public Accountants",
			EffectiveDate: date(2017, time.December, 15),
			Applicability: Applicability{OrganizationTypes: []string{"service organization"}, Industries: []string{"technology", "saas", "financial"}, Regions: everyone},
		},
			reqSpec{"soc2-cc1", "CC1", "Control environment", "The entity demonstrates a commitment to integrity, ethical values and oversight of internal control.", CriticalityMedium, TypeGovernance, nil, []string{"governance"}},
			reqSpec{"soc2-cc6", "CC6", "Logical and physical access controls", "Logical access to systems is restricted to authorised users and protected against threats.", CriticalityCritical, TypeControl, []string{"iso27001-a5-15"}, []string{"access control"}},
			reqSpec{"soc2-cc7", "CC7", "System operations", "The entity detects, monitors and responds to security events and incidents.", CriticalityHigh, TypeProcedure, nil, []string{"incident response", "monitoring"}},
		),
		build(Standard{
			ID:            "iso9001",
			Name:          "ISO 9001 Quality Management Systems",
			ShortName:     "ISO 9001",
			Description:   "International standard for quality management systems focused on customer satisfaction and continual improvement.",
			Version:       "2015",
			Category:      CategoryQuality,
			Authority:     "International Organization for Standardization",
			EffectiveDate: date(2015, time.September, 15),
			Applicability: Applicability{OrganizationTypes: everyone, Industries: everyone, Regions: everyone},
		},
			reqSpec{"iso9001-5-2", "Clause 5.2", "Quality policy", "Top management establishes, implements and maintains a quality policy.", CriticalityMedium, TypePolicy, nil, []string{"policy"}},
			reqSpec{"iso9001-7-5", "Clause 7.5", "Documented information", "Documented information required by the QMS is controlled, available and protected.", CriticalityMedium, TypeDocumentation, nil, []string{"records"}},
			reqSpec{"iso9001-10-2", "Clause 10.2", "Nonconformity and corrective action", "Nonconformities are reacted to, root causes evaluated and corrective actions taken.", CriticalityHigh, TypeProcedure, nil, []string{"improvement"}},
		),
		build(Standard{
			ID:            "iso14001",
			Name:          "ISO 14001 Environmental Management Systems",
			ShortName:     "ISO 14001",
			Description:   "International standard for environmental management systems that enhance environmental performance.",
			Version:       "2015",
			Category:      CategoryEnvironmental,
			Authority:     "International Organization for Standardization",
			EffectiveDate: date(2015, time.September, 15),
			Applicability: Applicability{OrganizationTypes: everyone, Industries: everyone, Regions: everyone},
		},
			reqSpec{"iso14001-5-2", "Clause 5.2", "Environmental policy", "Top management establishes an environmental policy including a commitment to pollution prevention.", CriticalityMedium, TypePolicy, nil, []string{"policy"}},
			reqSpec{"iso14001-6-1-2", "Clause 6.1.2", "Environmental aspects", "The organization determines the environmental aspects of its activities and their impacts.", CriticalityHigh, TypeProcedure, nil, []string{"impact"}},
			reqSpec{"iso14001-9-1", "Clause 9.1", "Monitoring and measurement", "Environmental performance is monitored, measured, analysed and evaluated.", CriticalityMedium, TypeControl, nil, []string{"monitoring"}},
		),
		build(Standard{
			ID:            "ccpa",
			Name:          "California Consumer Privacy Act",
			ShortName:     "CCPA",
			Description:   "California law granting consumers rights over the personal information that businesses collect about them.",
			Version:       "2018 (amended by CPRA 2020)",
			Category:      CategoryPrivacy,
			Authority:     "California Privacy Protection Agency",
			EffectiveDate: date(2020, time.January, 1),
			Applicability: Applicability{OrganizationTypes: []string{"business"}, Industries: everyone, Regions: []string{"US", "US-CA"}},
		},
			reqSpec{"ccpa-1798-100", "1798.100", "Notice at collection", "Consumers are informed of the categories of personal information collected and the purposes of use.", CriticalityHigh, TypeDocumentation, nil, []string{"transparency"}},
			reqSpec{"ccpa-1798-105", "1798.105", "Right to delete", "Consumers can request deletion of personal information collected from them.", CriticalityHigh, TypeProcedure, []string{"gdpr-art17"}, []string{"data subject rights"}},
			reqSpec{"ccpa-1798-120", "1798.120", "Right to opt out of sale", "Consumers can opt out of the sale or sharing of their personal information.", CriticalityHigh, TypeProcedure, nil, []string{"consent"}},
		),
	}
}
