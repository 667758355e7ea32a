package server

import (
	"net/http"
	"sort"

	"github.com/autoverif/vinledger/pkg/api"
)

// CSV templates offered for download. Each has a header line and two
// example rows. The general template carries an explicit report_type
// column; the others rely on column detection.
var csvTemplates = map[string]string{
	"service": "vin,date,odometer_km,service_type,facility_name,description,cost,parts_type\n" +
		"2HGFC2F59MH528491,2025-06-15,45000,oil_change,Garage Nadeau,Vidange huile et filtre,89.99,oem\n" +
		"1HGBH41JXMN109186,2025-07-03,82150,brake_service,Centre Auto Laval,Plaquettes avant,312.50,aftermarket\n",

	"accident": "vin,date,severity,impact_point,airbag_deployed,drivable,estimated_cost,police_report_number,accident_location,description\n" +
		"2HGFC2F59MH528491,2025-02-10,moderate,front_left,oui,oui,4500.00,QC-2025-018443,Montréal QC,Collision intersection\n" +
		"1HGBH41JXMN109186,2024-11-22,minor,rear,non,oui,850.00,,Laval QC,Accrochage stationnement\n",

	"inspection": "vin,date,result,odometer_km,inspection_type,inspector_name,facility_name,facility_permit,notes\n" +
		"2HGFC2F59MH528491,2025-04-01,pass,43200,saaq_mecanique,J. Tremblay,Inspection Plus,P-44821,\n" +
		"1HGBH41JXMN109186,2025-03-18,fail,81000,saaq_mecanique,M. Gagnon,Garage Certifié QC,P-10293,Freins arrière usés\n",

	"ownership": "vin,date,previous_owner_type,new_owner_type,province,sale_price,odometer_km,usage_type\n" +
		"2HGFC2F59MH528491,2025-03-01,private,private,QC,18500.00,42000,personal\n" +
		"1HGBH41JXMN109186,2024-09-15,dealer,private,QC,12900.00,78500,personal\n",

	"general": "vin,report_type,date,odometer_km,service_type,severity,impact_point,result,notes\n" +
		"2HGFC2F59MH528491,service,2025-06-15,45000,oil_change,,,,\n" +
		"1HGBH41JXMN109186,inspection,2025-03-18,81000,,,,pass,\n",
}

// handleTemplateList lists the downloadable template names.
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	names := make([]string, 0, len(csvTemplates))
	for name := range csvTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	api.WriteJSON(w, http.StatusOK, map[string]any{"templates": names})
}

// handleTemplateDownload serves one template as a UTF-8 CSV file.
func (s *Server) handleTemplateDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	name := pathTail(r.URL.Path, "/api/collecte/templates/")
	body, ok := csvTemplates[name]
	if !ok {
		api.WriteNotFound(w, "unknown template")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.csv"`)
	_, _ = w.Write([]byte(body))
}
